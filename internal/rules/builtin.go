package rules

// BuiltinRules returns the compiled-in rule table. Each call returns a fresh
// slice, so callers may modify the result.
func BuiltinRules() []Rule {
	rules := []Rule{
		// .env files
		Substring("env_file_access", "Block access to .env files", ".env"),

		// Compose config dumps print interpolated secrets.
		ContainsAll("docker_compose_config", "Block docker compose config access", "docker", "compose", "config"),
		ContainsAll("docker_hyphen_compose_config", "Block docker-compose config access", "docker-compose", "config"),

		// macOS keychain queries
		ContainsAll("security_find_generic", "Block security find-generic (keychain access)", "security", "find-generic"),
		ContainsAll("security_find_internet", "Block security find-internet (keychain access)", "security", "find-internet"),
		ContainsAll("security_get_keychain", "Block security get-keychain", "security", "get-keychain"),

		// Mounted volumes holding key material
		ContainsAll("volumes_keys_access", "Block access to /Volumes/.../keys", "/Volumes", "keys"),
		ContainsAll("volumes_secret_access", "Block access to /Volumes/.../secret", "/Volumes", "secret"),
		ContainsAll("volumes_password_access", "Block access to /Volumes/.../password", "/Volumes", "password"),
		ContainsAll("volumes_credential_access", "Block access to /Volumes/.../credential", "/Volumes", "credential"),

		// Searching for secrets
		ContainsAll("grep_password", "Block grep for password patterns", "grep", "password"),
		ContainsAll("grep_secret", "Block grep for secret patterns", "grep", "secret"),
		ContainsAll("grep_key", "Block grep for key patterns", "grep", "key"),
		ContainsAll("grep_token", "Block grep for token patterns", "grep", "token"),
		ContainsAll("grep_api_key", "Block grep for api_key patterns", "grep", "api_key"),

		// SSH and cloud credentials
		Substring("ssh_dir_access", "Block access to ~/.ssh directory", "/.ssh/"),
		Substring("aws_dir_access", "Block access to ~/.aws directory", "/.aws/"),

		// Shell history
		Substring("bash_history", "Block access to .bash_history", ".bash_history"),
		Substring("zsh_history", "Block access to .zsh_history", ".zsh_history"),

		// Database dumps
		Substring("mysqldump", "Block mysqldump (database export)", "mysqldump"),
		Substring("pg_dump", "Block pg_dump (PostgreSQL export)", "pg_dump"),
		ContainsAll("redis_cli_keys", "Block redis-cli keys (Redis inspection)", "redis-cli", "keys"),

		// Git credentials
		ContainsAll("git_config_get", "Block git config get (credential access)", "git", "config", "get"),

		// find for secret files
		ContainsAll("find_password", "Block find for password files", "find", "password"),
		ContainsAll("find_secret", "Block find for secret files", "find", "secret"),
		ContainsAll("find_key", "Block find for key files", "find", "key"),

		ContainsAll("cat_env", "Block cat .env", "cat", ".env"),
		ContainsAll("ls_ssh", "Block ls ~/.ssh", "ls", "/.ssh"),
	}

	for i := range rules {
		rules[i].Layer = LayerBuiltin
	}
	return rules
}
