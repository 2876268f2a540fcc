package config

// EnvPrefix scopes all envconfig lookups.
const EnvPrefix = "DRINKRUN"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "DRINKRUN_DB_DSN"
	EnvDBHost = "DRINKRUN_DB_HOST"
	EnvDBUser = "DRINKRUN_DB_USER"
	EnvDBName = "DRINKRUN_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
