package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflow_versions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				version TEXT NOT NULL,
				title TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				source_yaml TEXT NOT NULL,
				checksum TEXT NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT false,
				created_by TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				UNIQUE (workflow_id, version),
				UNIQUE (workflow_id, checksum)
			);

			CREATE UNIQUE INDEX idx_workflow_versions_active ON workflow_versions(workflow_id) WHERE is_active;

			CREATE TABLE deals (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				workflow_version_id TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				payload JSONB NOT NULL DEFAULT '{}',
				transition_seq BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_deals_status ON deals(status);
			CREATE INDEX idx_deals_workflow_id ON deals(workflow_id);

			CREATE TABLE tasks (
				id TEXT PRIMARY KEY,
				deal_id TEXT NOT NULL REFERENCES deals(id) ON DELETE CASCADE,
				type TEXT NOT NULL,
				status TEXT NOT NULL,
				assignee_role TEXT NOT NULL DEFAULT '',
				assignee_user_id TEXT NOT NULL DEFAULT '',
				sla_due_at TIMESTAMP WITH TIME ZONE,
				sla_status TEXT NOT NULL DEFAULT '',
				payload JSONB NOT NULL DEFAULT '{}',
				action_hash TEXT UNIQUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_tasks_deal_id ON tasks(deal_id);
		`,
		2: queueTable("workflow_notification_queue") +
			queueTable("workflow_webhook_queue") +
			queueTable("workflow_schedule_queue"),
		3: `
			CREATE TABLE audit_log (
				id TEXT PRIMARY KEY,
				deal_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				actor_id TEXT NOT NULL DEFAULT '',
				actor_role TEXT NOT NULL DEFAULT '',
				from_status TEXT NOT NULL DEFAULT '',
				to_status TEXT NOT NULL DEFAULT '',
				workflow_version_id TEXT NOT NULL DEFAULT '',
				context JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_audit_log_deal_id ON audit_log(deal_id, created_at);

			CREATE TABLE deal_documents (
				id TEXT PRIMARY KEY,
				deal_id TEXT NOT NULL REFERENCES deals(id) ON DELETE CASCADE,
				document_type TEXT NOT NULL,
				title TEXT NOT NULL DEFAULT '',
				storage_path TEXT NOT NULL DEFAULT '',
				uploaded_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_deal_documents_deal_id ON deal_documents(deal_id);

			CREATE TABLE payments (
				id TEXT PRIMARY KEY,
				deal_id TEXT NOT NULL REFERENCES deals(id) ON DELETE CASCADE,
				kind TEXT NOT NULL,
				status TEXT NOT NULL,
				amount NUMERIC(18, 2),
				currency TEXT NOT NULL DEFAULT 'AED',
				external_ref TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_payments_deal_id ON payments(deal_id);

			CREATE TABLE risk_reports (
				id TEXT PRIMARY KEY,
				deal_id TEXT NOT NULL REFERENCES deals(id) ON DELETE CASCADE,
				provider TEXT NOT NULL,
				score INTEGER NOT NULL,
				approved BOOLEAN NOT NULL,
				notes TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_risk_reports_deal_id ON risk_reports(deal_id);
		`,
	}
}

func queueTable(name string) string {
	return `
			CREATE TABLE ` + name + ` (
				id TEXT PRIMARY KEY,
				deal_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				target TEXT NOT NULL DEFAULT '',
				to_roles JSONB NOT NULL DEFAULT '[]',
				cron TEXT NOT NULL DEFAULT '',
				payload JSONB NOT NULL DEFAULT '{}',
				action_hash TEXT UNIQUE,
				status TEXT NOT NULL DEFAULT 'PENDING',
				error TEXT NOT NULL DEFAULT '',
				attempts INTEGER NOT NULL DEFAULT 0,
				due_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				processed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_` + name + `_pending ON ` + name + `(status, created_at);
`
}
