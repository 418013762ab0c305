// Package main provides CLI for tenant schema management.
// Usage: schemactl ping
//        schemactl check tenant_acme
//        schemactl schemas
//        schemactl tenants
//        schemactl create --slug acme --name "ACME Corp"
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"pgsession/internal/core/tenant"
	"pgsession/internal/infrastructure/storage/postgres"
	"pgsession/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "warn"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "ping":
		pingDatabase(ctx, log)
	case "check":
		checkSchema(ctx, log)
	case "schemas":
		listSchemas(ctx, log)
	case "tenants":
		listTenants(ctx)
	case "create":
		createTenant(ctx, log)
	case "suspend":
		updateTenantStatus(ctx, tenant.StatusSuspended, tenant.AuditActionSuspend)
	case "activate":
		updateTenantStatus(ctx, tenant.StatusActive, tenant.AuditActionActivate)
	case "history":
		showHistory(ctx)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Tenant Schema Management CLI

Usage:
  schemactl <command> [options]

Commands:
  ping      Verify the target database is reachable
  check     Check whether a schema exists
  schemas   List non-system schemas in the target database
  tenants   List registered tenants
  create    Register a new tenant and create its schema
  suspend   Suspend a tenant
  activate  Activate a suspended tenant
  history   Show the audit trail for a tenant
  help      Show this help

Environment Variables:
  DATABASE_URL         Connection string for the target database (ping/check/schemas/create)
  META_DATABASE_URL    Connection string for the meta database (tenant commands)

Examples:
  schemactl ping
  schemactl check tenant_acme
  schemactl schemas
  schemactl tenants
  schemactl create --slug acme --name "ACME Corporation"
  schemactl suspend <tenant-uuid>
  schemactl activate <tenant-uuid>
  schemactl history <tenant-uuid>`)
}

func pingDatabase(ctx context.Context, log *logger.Logger) {
	cfg := postgres.DefaultConfig(mustEnv("DATABASE_URL"))

	err := postgres.WithFactory(ctx, cfg, log, func(ctx context.Context, f *postgres.Factory) error {
		return f.Ping(ctx)
	})
	if err != nil {
		fmt.Printf("✗ Database unreachable: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Database reachable")
}

func checkSchema(ctx context.Context, log *logger.Logger) {
	if len(os.Args) < 3 {
		fmt.Println("Usage: schemactl check <schema-name>")
		os.Exit(1)
	}
	schema := os.Args[2]

	cfg := postgres.DefaultConfig(mustEnv("DATABASE_URL"))

	var exists bool
	err := postgres.WithFactory(ctx, cfg, log, func(ctx context.Context, f *postgres.Factory) error {
		var err error
		exists, err = f.SchemaExists(ctx, schema)
		return err
	})
	if err != nil {
		fmt.Printf("Error checking schema: %v\n", err)
		os.Exit(1)
	}

	if !exists {
		fmt.Printf("✗ Schema '%s' not found\n", schema)
		os.Exit(1)
	}
	fmt.Printf("✓ Schema '%s' exists\n", schema)
}

func listSchemas(ctx context.Context, log *logger.Logger) {
	cfg := postgres.DefaultConfig(mustEnv("DATABASE_URL"))

	var schemas []string
	err := postgres.WithFactory(ctx, cfg, log, func(ctx context.Context, f *postgres.Factory) error {
		var err error
		schemas, err = f.ListSchemas(ctx)
		return err
	})
	if err != nil {
		fmt.Printf("Error listing schemas: %v\n", err)
		os.Exit(1)
	}

	if len(schemas) == 0 {
		fmt.Println("No schemas found")
		return
	}
	for _, s := range schemas {
		fmt.Println(s)
	}
}

func getMetaPool(ctx context.Context) *postgres.Pool {
	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("META_DATABASE_URL")))
	if err != nil {
		fmt.Printf("Error connecting to meta database: %v\n", err)
		os.Exit(1)
	}
	return pool
}

func listTenants(ctx context.Context) {
	metaPool := getMetaPool(ctx)
	defer metaPool.Close()

	registry := tenant.NewPostgresRegistry(metaPool.Unwrap())
	tenants, err := registry.ListAll(ctx)
	if err != nil {
		fmt.Printf("Error listing tenants: %v\n", err)
		os.Exit(1)
	}

	if len(tenants) == 0 {
		fmt.Println("No tenants found")
		return
	}

	fmt.Printf("%-36s %-20s %-30s %-25s %-15s %-10s\n", "TENANT_ID", "SLUG", "NAME", "SCHEMA", "DATABASE", "STATUS")
	fmt.Println(strings.Repeat("-", 140))

	for _, t := range tenants {
		fmt.Printf("%-36s %-20s %-30s %-25s %-15s %-10s\n",
			truncate(t.ID, 36),
			truncate(t.Slug, 20),
			truncate(t.DisplayName, 30),
			truncate(t.SchemaName, 25),
			truncate(t.DBName, 15),
			t.Status,
		)
	}
}

func createTenant(ctx context.Context, log *logger.Logger) {
	var input tenant.CreateTenantInput

	// Parse arguments
	for i := 2; i < len(os.Args); i++ {
		switch os.Args[i] {
		case "--slug":
			if i+1 < len(os.Args) {
				input.Slug = os.Args[i+1]
				i++
			}
		case "--name":
			if i+1 < len(os.Args) {
				input.DisplayName = os.Args[i+1]
				i++
			}
		case "--db-name":
			if i+1 < len(os.Args) {
				input.DBName = os.Args[i+1]
				i++
			}
		case "--db-host":
			if i+1 < len(os.Args) {
				input.DBHost = os.Args[i+1]
				i++
			}
		case "--db-port":
			if i+1 < len(os.Args) {
				if port, err := strconv.Atoi(os.Args[i+1]); err == nil {
					input.DBPort = port
				}
				i++
			}
		}
	}

	if err := input.Validate(); err != nil {
		fmt.Printf("Error: %v\n", err)
		fmt.Println("Usage: schemactl create --slug <slug> --name <name> [--db-name <db>] [--db-host <host>] [--db-port <port>]")
		os.Exit(1)
	}

	schemaName := input.GenerateSchemaName()

	fmt.Printf("Creating tenant '%s'...\n", input.Slug)

	// 1. Create the schema in the target database
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		fmt.Printf("  Creating schema %s...\n", schemaName)
		err := postgres.WithFactory(ctx, postgres.DefaultConfig(dsn), log, func(ctx context.Context, f *postgres.Factory) error {
			return f.CreateSchema(ctx, schemaName)
		})
		if err != nil {
			fmt.Printf("  Warning: Could not create schema: %v\n", err)
			fmt.Println("  You may need to create the schema manually.")
		} else {
			fmt.Println("  Schema created")
		}
	}

	// 2. Register in meta database
	fmt.Println("  Registering tenant...")

	metaPool := getMetaPool(ctx)
	defer metaPool.Close()

	registry := tenant.NewPostgresRegistry(metaPool.Unwrap())

	t := &tenant.Tenant{
		Slug:        input.Slug,
		DisplayName: input.DisplayName,
		SchemaName:  schemaName,
		DBName:      input.DBName,
		DBHost:      input.DBHost,
		DBPort:      input.DBPort,
		Status:      tenant.StatusActive,
	}
	if t.DBHost == "" {
		t.DBHost = "localhost"
	}
	if t.DBPort == 0 {
		t.DBPort = 5432
	}

	if err := registry.Create(ctx, t); err != nil {
		fmt.Printf("Error registering tenant: %v\n", err)
		os.Exit(1)
	}

	recordAudit(ctx, metaPool, t.ID, tenant.AuditActionCreate, map[string]any{
		"slug":        t.Slug,
		"schema_name": t.SchemaName,
		"db_name":     t.DBName,
		"db_host":     t.DBHost,
		"db_port":     t.DBPort,
		"status":      t.Status,
	})

	fmt.Printf("\n✓ Tenant '%s' created successfully!\n", input.Slug)
	fmt.Printf("  Tenant ID: %s\n", t.ID)
	fmt.Printf("  Schema: %s\n", schemaName)
	fmt.Printf("  Status: active\n")
}

func updateTenantStatus(ctx context.Context, status tenant.Status, action tenant.AuditAction) {
	if len(os.Args) < 3 {
		fmt.Printf("Usage: schemactl %s <tenant-uuid>\n", action)
		os.Exit(1)
	}
	tenantID := parseTenantID(os.Args[2])

	metaPool := getMetaPool(ctx)
	defer metaPool.Close()

	registry := tenant.NewPostgresRegistry(metaPool.Unwrap())

	prev, err := registry.GetByID(ctx, tenantID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if err := registry.UpdateStatusByID(ctx, tenantID, status); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	recordAudit(ctx, metaPool, tenantID, action, map[string]any{
		"status": map[string]any{"old": prev.Status, "new": status},
	})

	fmt.Printf("✓ Tenant '%s' is now %s\n", prev.Slug, status)
}

func showHistory(ctx context.Context) {
	if len(os.Args) < 3 {
		fmt.Println("Usage: schemactl history <tenant-uuid>")
		os.Exit(1)
	}
	tenantID := parseTenantID(os.Args[2])

	metaPool := getMetaPool(ctx)
	defer metaPool.Close()

	auditLog, err := tenant.NewAuditLog(metaPool.Unwrap())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	entries, err := auditLog.History(ctx, tenantID, 50)
	if err != nil {
		fmt.Printf("Error reading history: %v\n", err)
		os.Exit(1)
	}

	if len(entries) == 0 {
		fmt.Println("No audit entries found")
		return
	}

	fmt.Printf("%-20s %-10s %-15s %s\n", "CREATED_AT", "ACTION", "ACTOR", "CHANGES")
	fmt.Println(strings.Repeat("-", 100))

	for _, e := range entries {
		fmt.Printf("%-20s %-10s %-15s %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Action,
			truncate(e.Actor, 15),
			truncate(string(e.Changes), 50),
		)
	}
}

func recordAudit(ctx context.Context, metaPool *postgres.Pool, tenantID string, action tenant.AuditAction, changes map[string]any) {
	auditLog, err := tenant.NewAuditLog(metaPool.Unwrap())
	if err == nil {
		err = auditLog.RecordChange(ctx, tenantID, action, getEnv("USER", "unknown"), changes)
	}
	if err != nil {
		fmt.Printf("  Warning: could not record audit entry: %v\n", err)
	}
}

func parseTenantID(raw string) string {
	id, err := uuid.Parse(raw)
	if err != nil {
		fmt.Printf("Error: invalid tenant id '%s'\n", raw)
		os.Exit(1)
	}
	return id.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}
