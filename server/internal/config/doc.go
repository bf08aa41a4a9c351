// Package config loads the server configuration from the `server:` section
// of config.yaml.
//
// Secrets never live in the file. Keys ending in _env name an environment
// variable that holds the value (auth.secret_env, storage.dsn_env,
// auth.admin.password_env, notify.smtp.password_env, notify.webhooks[].url_env).
//
// Load(path) applies defaults before unmarshalling, then validates. Watch
// re-loads the file on every write and hands the new Config to a callback;
// the server only applies log_level and notify.admin_email from a reload.
package config
