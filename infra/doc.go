// Package infra holds the adapters around the charging engine: zerolog,
// MQTT and NATS transports, Prometheus, InfluxDB and SQLite sinks, Sentry
// and the hub inventory loaders. Packages below it depend on core
// interfaces only, never on app.
package infra
