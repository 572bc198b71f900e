package config

const (
	EnvPrefix = "VENDORPAYOUTS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "VENDORPAYOUTS_DB_DSN"
	EnvDBHost = "VENDORPAYOUTS_DB_HOST"
	EnvDBUser = "VENDORPAYOUTS_DB_USER"
	EnvDBName = "VENDORPAYOUTS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
