package sqlite

// schemaDDL creates the canonical tables. Every table is keyed by a
// composite primary key beginning with the entity id and tenant_id, and
// carries created_at / last_updated timestamps maintained by the upsert
// engine's conflict clause.
//
// Devices deliberately occupy two tables, one per upstream provenance,
// sharing the (tenant_id, device_id) key. They are never merged; callers
// needing a unified view join on the shared key themselves.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS users (
	user_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	user_principal_name TEXT,
	primary_email TEXT,
	display_name TEXT,
	department TEXT,
	job_title TEXT,
	office_location TEXT,
	mobile_phone TEXT,
	account_type TEXT,
	account_enabled BOOLEAN NOT NULL DEFAULT 0,
	is_admin BOOLEAN NOT NULL DEFAULT 0,
	is_mfa_registered BOOLEAN,
	license_count INTEGER NOT NULL DEFAULT 0,
	group_count INTEGER NOT NULL DEFAULT 0,
	last_sign_in TEXT,
	last_password_change TEXT,
	created_at TEXT NOT NULL,
	last_updated TEXT NOT NULL,
	PRIMARY KEY (user_id, tenant_id)
);

CREATE TABLE IF NOT EXISTS devices_intune (
	device_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	device_name TEXT,
	model TEXT,
	manufacturer TEXT,
	serial_number TEXT,
	operating_system TEXT,
	os_version TEXT,
	ownership TEXT,
	compliance_state TEXT,
	is_compliant BOOLEAN NOT NULL DEFAULT 0,
	is_encrypted BOOLEAN NOT NULL DEFAULT 0,
	total_storage_gb REAL,
	free_storage_gb REAL,
	physical_memory_gb REAL,
	enrolled_at TEXT,
	last_seen TEXT,
	created_at TEXT NOT NULL,
	last_updated TEXT NOT NULL,
	PRIMARY KEY (device_id, tenant_id)
);

CREATE TABLE IF NOT EXISTS devices_entra (
	device_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	display_name TEXT,
	model TEXT,
	manufacturer TEXT,
	operating_system TEXT,
	os_version TEXT,
	trust_type TEXT,
	is_rooted BOOLEAN,
	is_compliant BOOLEAN,
	is_managed BOOLEAN,
	on_prem_sync_enabled BOOLEAN,
	registered_at TEXT,
	last_sign_in TEXT,
	created_at TEXT NOT NULL,
	last_updated TEXT NOT NULL,
	PRIMARY KEY (device_id, tenant_id)
);

CREATE TABLE IF NOT EXISTS service_principals (
	sp_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	app_id TEXT,
	display_name TEXT,
	publisher TEXT,
	sp_type TEXT,
	account_enabled BOOLEAN NOT NULL DEFAULT 0,
	sign_in_audience TEXT,
	owners TEXT,
	key_credential_expiry TEXT,
	password_credential_expiry TEXT,
	last_sign_in TEXT,
	created_at TEXT NOT NULL,
	last_updated TEXT NOT NULL,
	PRIMARY KEY (sp_id, tenant_id)
);

CREATE TABLE IF NOT EXISTS policies (
	policy_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	display_name TEXT,
	state TEXT,
	is_active BOOLEAN NOT NULL DEFAULT 0,
	policy_created_at TEXT,
	policy_modified_at TEXT,
	created_at TEXT NOT NULL,
	last_updated TEXT NOT NULL,
	PRIMARY KEY (policy_id, tenant_id)
);

CREATE TABLE IF NOT EXISTS policy_users (
	tenant_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	policy_id TEXT NOT NULL,
	user_principal_name TEXT,
	policy_name TEXT,
	created_at TEXT NOT NULL,
	last_updated TEXT NOT NULL,
	PRIMARY KEY (tenant_id, user_id, policy_id)
);

CREATE TABLE IF NOT EXISTS policy_applications (
	tenant_id TEXT NOT NULL,
	application_id TEXT NOT NULL,
	policy_id TEXT NOT NULL,
	application_name TEXT,
	policy_name TEXT,
	created_at TEXT NOT NULL,
	last_updated TEXT NOT NULL,
	PRIMARY KEY (tenant_id, application_id, policy_id)
);

CREATE TABLE IF NOT EXISTS subscriptions (
	subscription_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	commerce_subscription_id TEXT,
	sku_id TEXT,
	sku_part_number TEXT,
	is_active BOOLEAN NOT NULL DEFAULT 0,
	is_trial BOOLEAN NOT NULL DEFAULT 0,
	total_licenses INTEGER NOT NULL DEFAULT 0,
	purchased_at TEXT,
	next_lifecycle_at TEXT,
	created_at TEXT NOT NULL,
	last_updated TEXT NOT NULL,
	PRIMARY KEY (subscription_id, tenant_id)
);

CREATE TABLE IF NOT EXISTS groups (
	group_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	display_name TEXT,
	description TEXT,
	group_type TEXT,
	mail_enabled BOOLEAN NOT NULL DEFAULT 0,
	security_enabled BOOLEAN NOT NULL DEFAULT 0,
	visibility TEXT,
	member_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	last_updated TEXT NOT NULL,
	PRIMARY KEY (group_id, tenant_id)
);

CREATE TABLE IF NOT EXISTS group_members (
	tenant_id TEXT NOT NULL,
	group_id TEXT NOT NULL,
	member_id TEXT NOT NULL,
	member_type TEXT,
	member_display_name TEXT,
	created_at TEXT NOT NULL,
	last_updated TEXT NOT NULL,
	PRIMARY KEY (tenant_id, group_id, member_id)
);

CREATE INDEX IF NOT EXISTS idx_users_tenant ON users(tenant_id);
CREATE INDEX IF NOT EXISTS idx_devices_intune_tenant ON devices_intune(tenant_id);
CREATE INDEX IF NOT EXISTS idx_devices_entra_tenant ON devices_entra(tenant_id);
CREATE INDEX IF NOT EXISTS idx_service_principals_tenant ON service_principals(tenant_id);
CREATE INDEX IF NOT EXISTS idx_policies_tenant ON policies(tenant_id);
CREATE INDEX IF NOT EXISTS idx_policy_users_policy ON policy_users(policy_id);
CREATE INDEX IF NOT EXISTS idx_policy_applications_policy ON policy_applications(policy_id);
CREATE INDEX IF NOT EXISTS idx_subscriptions_tenant ON subscriptions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_groups_tenant ON groups(tenant_id);
CREATE INDEX IF NOT EXISTS idx_group_members_group ON group_members(group_id);
`
