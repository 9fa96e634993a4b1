package config

// EnvPrefix is empty because every field names its full variable.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv          = "SAGA_APP_ENV"
	EnvPort            = "SAGA_APP_PORT"
	EnvDBDSN           = "SAGA_DB_DSN"
	EnvDBDriver        = "SAGA_DB_DRIVER"
	EnvDBHost          = "SAGA_DB_HOST"
	EnvDBUser          = "SAGA_DB_USER"
	EnvDBName          = "SAGA_DB_NAME"
	EnvDBPassword      = "SAGA_DB_PASSWORD"
	EnvGCPProjectID    = "SAGA_GCP_PROJECT_ID"
	EnvRetryMaxRetries = "SAGA_RETRY_MAX_RETRIES"
	EnvRetryDelayMS    = "SAGA_RETRY_INITIAL_DELAY_MS"
	EnvOutboxBatchSize = "SAGA_OUTBOX_PUBLISH_BATCH_SIZE"
	EnvConsulAddr      = "SAGA_CONSUL_ADDR"
	EnvDiscoveryOn     = "SAGA_DISCOVERY_ENABLED"
	EnvSidecarOn       = "SAGA_SIDECAR_ENABLED"
)
