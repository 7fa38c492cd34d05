package database

const (
	// User queries
	queryUpsertUser = `
		INSERT INTO users (telegram_id, username) VALUES (?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			username = excluded.username,
			updated_at = CURRENT_TIMESTAMP`

	queryUpsertUserWithRole = `
		INSERT INTO users (telegram_id, username, role) VALUES (?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			username = excluded.username,
			role = excluded.role,
			updated_at = CURRENT_TIMESTAMP`

	queryGetUser = `
		SELECT telegram_id, username, role, credits, assigned_accounts, created_at, updated_at
		FROM users
		WHERE telegram_id = ?`

	queryGetUserRole = `
		SELECT role FROM users WHERE telegram_id = ?`

	queryListAdminIds = `
		SELECT telegram_id FROM users WHERE role IN ('admin', 'owner')`

	// Admin/client link queries
	queryAddAdminClient = `
		INSERT OR IGNORE INTO admin_clients (admin_id, client_id) VALUES (?, ?)`

	queryGetAdminClientIds = `
		SELECT client_id FROM admin_clients WHERE admin_id = ?`

	// Credit queries
	queryGetCredits = `
		SELECT credits FROM users WHERE telegram_id = ?`

	querySetCredits = `
		UPDATE users SET credits = ?, updated_at = CURRENT_TIMESTAMP
		WHERE telegram_id = ?`

	queryInsertCreditHistory = `
		INSERT INTO credit_history (id, user_id, delta, reason, actor)
		VALUES (?, ?, ?, ?, ?)`

	// Account and assignment queries
	queryUpsertAccount = `
		INSERT INTO accounts (email, expires_at) VALUES (?, ?)
		ON CONFLICT(email) DO UPDATE SET
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP`

	queryFindActiveOwner = `
		SELECT id, email, user_id, expires_at, assigned_by, active, created_at
		FROM assignments
		WHERE email = ? AND active = 1`

	queryFindActiveAssignment = `
		SELECT id, email, user_id, expires_at, assigned_by, active, created_at
		FROM assignments
		WHERE user_id = ? AND email = ? AND active = 1`

	queryListActiveAssignments = `
		SELECT id, email, user_id, expires_at, assigned_by, active, created_at
		FROM assignments
		WHERE user_id = ? AND active = 1
		ORDER BY expires_at, email`

	queryListAllActiveAssignments = `
		SELECT id, email, user_id, expires_at, assigned_by, active, created_at
		FROM assignments
		WHERE active = 1
		ORDER BY expires_at, user_id`

	queryExtendAssignment = `
		UPDATE assignments SET expires_at = ?
		WHERE user_id = ? AND email = ? AND active = 1`

	queryInsertAssignment = `
		INSERT INTO assignments (email, user_id, expires_at, assigned_by, active)
		VALUES (?, ?, ?, ?, 1)`

	queryDeactivateAssignment = `
		UPDATE assignments SET active = 0
		WHERE user_id = ? AND email = ? AND active = 1`

	queryRecountAssignments = `
		UPDATE users SET
			assigned_accounts = (
				SELECT COUNT(*) FROM assignments
				WHERE user_id = ? AND active = 1
			),
			updated_at = CURRENT_TIMESTAMP
		WHERE telegram_id = ?`

	queryCountActiveAssignments = `
		SELECT COUNT(*) FROM assignments WHERE user_id = ? AND active = 1`

	// Operation queries
	queryHasPendingOperation = `
		SELECT EXISTS(
			SELECT 1 FROM operations WHERE user_id = ? AND status = 'pendiente'
		)`

	queryInsertOperation = `
		INSERT INTO operations (user_id, kind, payload, status)
		VALUES (?, ?, ?, 'pendiente')`

	// Conditional form of the insert above: refuses a second pending
	// operation for the same user without a separate read.
	queryInsertOperationExclusive = `
		INSERT INTO operations (user_id, kind, payload, status)
		SELECT ?, ?, ?, 'pendiente'
		WHERE NOT EXISTS (
			SELECT 1 FROM operations WHERE user_id = ? AND status = 'pendiente'
		)`

	queryFinishOperation = `
		UPDATE operations SET status = ?, raw_reply = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryLatestOperation = `
		SELECT id, user_id, kind, COALESCE(payload, ''), status, COALESCE(raw_reply, ''), created_at, updated_at
		FROM operations
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT 1`

	// Replacement request queries
	queryInsertReplacementRequest = `
		INSERT INTO replacement_requests (user_id, email, reason, status, decided_by)
		VALUES (?, ?, ?, ?, ?)`

	queryGetReplacementRequest = `
		SELECT id, user_id, email, reason, status, COALESCE(decided_by, ''), created_at, updated_at
		FROM replacement_requests
		WHERE id = ?`

	queryListPendingReplacementRequests = `
		SELECT id, user_id, email, reason, status, COALESCE(decided_by, ''), created_at, updated_at
		FROM replacement_requests
		WHERE status = 'pendiente'
		ORDER BY id`

	queryDecideReplacementRequest = `
		UPDATE replacement_requests
		SET status = ?, decided_by = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pendiente'`

	queryLatestOpenReplacementRequest = `
		SELECT id, user_id, email, reason, status, COALESCE(decided_by, ''), created_at, updated_at
		FROM replacement_requests
		WHERE status IN ('aceptado', 'pendiente')
		ORDER BY id DESC
		LIMIT 1`

	queryLatestOpenReplacementRequestByEmail = `
		SELECT id, user_id, email, reason, status, COALESCE(decided_by, ''), created_at, updated_at
		FROM replacement_requests
		WHERE email = ? AND status IN ('aceptado', 'pendiente')
		ORDER BY id DESC
		LIMIT 1`

	querySetReplacementStatus = `
		UPDATE replacement_requests
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`
)
