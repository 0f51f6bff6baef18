package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axiom/sqlagent/internal/config"
	"github.com/axiom/sqlagent/internal/models"
	"github.com/axiom/sqlagent/internal/verification"
)

var (
	certFile    string
	certSQLFile string
	certKey     string
)

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Work with run certificates",
}

var certVerifyCmd = &cobra.Command{
	Use:   "verify [sql]",
	Short: "Check that a certificate was issued for a statement",
	Long: `Verify the signature and hash chain of a run certificate against the
statement it certifies. The signing key defaults to CERT_SIGNING_KEY.`,
	Example: `  sqlagent cert verify --cert cert.json --sql-file query.sql`,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readFile(certFile)
		if err != nil {
			return err
		}
		var cert models.Certificate
		if err := json.Unmarshal([]byte(raw), &cert); err != nil {
			return fmt.Errorf("decoding certificate: %w", err)
		}

		var sql string
		if certSQLFile != "" {
			sql, err = readFile(certSQLFile)
		} else {
			sql, err = statement(args, cmd.InOrStdin())
		}
		if err != nil {
			return err
		}

		key := certKey
		if key == "" {
			key = config.Load().CertSigningKey
		}
		if err := verification.NewCertificateService(key).Verify(&cert, sql); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "certificate %s valid: %s at tier %s (run %s)\n", cert.ID, cert.Case, cert.Tier, cert.RunID)
		return nil
	},
}

func init() {
	f := certVerifyCmd.Flags()
	f.StringVar(&certFile, "cert", "", "certificate JSON file")
	f.StringVar(&certSQLFile, "sql-file", "", "file holding the certified SQL (default: argument or stdin)")
	f.StringVar(&certKey, "key", "", "signing key (default: CERT_SIGNING_KEY)")
	_ = certVerifyCmd.MarkFlagRequired("cert")
	certCmd.AddCommand(certVerifyCmd)
}
