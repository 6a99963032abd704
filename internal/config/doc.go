// Package config handles configuration loading for audit-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML file (or TOML when the path ends in
// .toml) with environment variable expansion. Missing optional values receive
// defaults before validation.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	credentials:
//	  password: "${BACKEND_PASSWORD}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to an empty string.
//
// # Configuration Sections
//
// Server:
//
//	server:
//	  http_addr: "0.0.0.0:8001"
//
// Backend endpoints:
//
//	backend:
//	  auth_url: "https://sessions.example.com"   # /token, /sessions/*
//	  api_url: "https://api.example.com"         # /files/*, /ingest_data, /task/status
//	  bucket_name: "audit-uploads"
//	  region: "us-east-1"
//	  request_timeout: "60s"
//
// Credentials:
//
//	credentials:
//	  username: "${BACKEND_USERNAME}"
//	  password: "${BACKEND_PASSWORD}"
//	  company_id: 12
//	  user_id: 34
//
// Polling:
//
//	polling:
//	  settle_delay: "3s"
//	  timeout: "3h"
//	  max_requests: 20
//
// Legal documents service:
//
//	legaldocs:
//	  url: "https://legaldocs.example.com"
//
// Inbound auth:
//
//	auth:
//	  jwt_secret: "${AUDIT_GATEWAY_JWT_SECRET}"
//	  require_auth: true
//	  tokens:
//	    - token: "${MCP_STATIC_TOKEN}"
//	      capabilities: ["audit", "legaldocs"]
//
// Run ledger:
//
//	database:
//	  path: "/var/lib/audit-gateway/runs.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
