package config

const defaultTOML = `# ProPhone Configuration

[server]
# Address to listen on.
host = "0.0.0.0"
port = 8085

# CORS allowed origins. Use ["*"] to allow all.
cors_allowed_origins = ["*"]

# Seconds to wait for in-flight requests during shutdown.
shutdown_timeout = 10

[telephony]
# Active provider: twilio, telnyx, bandwidth, sns, or log.
# "log" prints operations instead of calling a vendor (dev mode).
provider = "log"

# Default region for national-format numbers.
default_country = "US"

# Restrict destinations to these regions. Empty allows all.
# allowed_countries = ["US", "CA"]

# Seconds each vendor call may take before it is cancelled.
operation_timeout = 30

# Retry budget for idempotent reads (listing numbers, message status).
# Sends and other mutating calls are never retried.
max_retries = 3

# Vendor credentials. Prefer 'prophone init' + the encrypted credentials
# store over putting secrets in this file.
[telephony.twilio]
# account_sid = "ACxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"
# auth_token = ""
# from = "+15551234567"

[telephony.telnyx]
# api_key = ""
# connection_id = ""
# from = "+15551234567"

[telephony.bandwidth]
# account_id = ""
# username = ""
# api_secret = ""
# application_id = ""
# site_id = ""
# answer_url = "https://myapp.example.com/webhooks/bandwidth/answer"
# from = "+15551234567"

[telephony.sns]
# region = "us-east-1"

[storage]
# Directory for the local database, encryption key, and credentials.
data_dir = "./prophone_data"

# SQLite database path (default: <data_dir>/prophone.db).
# db_path = ""

[secrets]
# Credential encryption key as 64 hex characters. If empty, the key is read
# from key_file (default: <data_dir>/secret.key, created by 'prophone init').
# key = ""
# key_file = ""

[admin]
# Enable the admin API endpoints.
enabled = false

# Admin API password. Required when enabled.
# password = ""

[logging]
# Log level: debug, info, warn, error.
level = "info"

# Log format: json or text.
format = "json"
`
