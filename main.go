// Project Structure Overview
/*
catalog-backend/
├── cmd/
│   ├── server/
│   │   └── main.go          HTTP API
│   └── sync/
│       └── main.go          one vendor pass, for cron
├── internal/
│   ├── config/
│   │   ├── config.go
│   │   ├── database.go
│   │   └── logging.go
│   ├── models/
│   │   ├── vendor.go
│   │   ├── product.go
│   │   ├── vendor_product.go
│   │   ├── sync_run.go
│   │   ├── credential.go
│   │   ├── admin.go
│   │   └── common.go
│   ├── reconcile/           merge engine and image upgrader
│   ├── vendors/             REST, SOAP and FTP/CSV adapters, field mappings
│   ├── cache/               memory and redis TTL caches
│   ├── metrics/
│   ├── handlers/
│   │   ├── product.go
│   │   ├── vendor.go
│   │   ├── sync.go
│   │   ├── admin.go
│   │   └── errors.go
│   ├── services/
│   │   ├── catalog_service.go
│   │   ├── sync_service.go
│   │   ├── priority_service.go
│   │   ├── request_queue.go
│   │   ├── vendor_service.go
│   │   ├── credential_service.go
│   │   ├── storage_service.go
│   │   └── container.go
│   ├── middleware/
│   │   ├── auth.go
│   │   ├── cors.go
│   │   ├── rate_limit.go
│   │   ├── i18n.go
│   │   └── logging.go
│   ├── database/
│   │   ├── connection.go
│   │   └── sqlite.go
│   ├── i18n/
│   │   ├── i18n.go
│   │   ├── locales/
│   │   │   ├── en.json
│   │   │   └── zh_TW.json
│   │   └── keys.go
│   ├── utils/
│   │   ├── jwt.go
│   │   ├── validator.go
│   │   ├── crypto.go
│   │   ├── pagination.go
│   │   └── response.go
│   ├── router/
│   │   └── router.go
│   └── tests/
├── go.mod
└── go.sum
*/

package catalogbackend

// This file shows the project structure. The entry points are cmd/server
// and cmd/sync.
