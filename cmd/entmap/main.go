package main

import (
	"context"
	"fmt"
	"os"

	"github.com/entmap/entmap"
	"github.com/entmap/entmap/backend/memory"
	"github.com/entmap/entmap/backend/sqldb"
	"github.com/entmap/entmap/internal/models"
	"github.com/entmap/entmap/schema"
	"github.com/spf13/cobra"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "entmap",
		Short:         "Inspect and create the storage of the entmap sample models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./entmap.yaml)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Print every registered table and field",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, closeFn, err := open(configPath)
			if err != nil {
				return err
			}
			defer closeFn()
			return db.DumpSchema(cmd.Context(), cmd.OutOrStdout())
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "build",
		Short: "Create every missing table on the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, closeFn, err := open(configPath)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := db.Build(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d tables\n", len(db.Registry.Tables()))
			return nil
		},
	})

	rootCmd.SetContext(context.Background())
	return rootCmd
}

// open builds the sealed sample registry and the configured backend
func open(configPath string) (*entmap.DB, func(), error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	l, err := config.logger()
	if err != nil {
		return nil, nil, err
	}

	reg, err := models.NewRegistry(schema.NamingStrategy{
		TablePrefix:  config.Naming.TablePrefix,
		PluralTables: config.Naming.PluralTables,
	})
	if err != nil {
		return nil, nil, err
	}

	var (
		backend entmap.Backend
		closeFn = func() {}
	)
	switch config.Driver {
	case "memory":
		backend = memory.New(reg, memory.WithMaxDepth(config.MaxDepth))
	default:
		opts := []sqldb.Option{sqldb.WithMaxDepth(config.MaxDepth), sqldb.WithLogger(l)}
		if config.PrepareStmt {
			opts = append(opts, sqldb.WithPrepareStmt(0))
		}
		b, err := sqldb.OpenDSN(reg, config.Driver, config.DSN, opts...)
		if err != nil {
			return nil, nil, err
		}
		backend = b
		closeFn = func() { b.Close() }
	}

	db, err := entmap.Open(backend, reg, entmap.WithLogger(l))
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return db, closeFn, nil
}
