package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/bobbyillbrian-max/family-ms/internal/blob"
	"github.com/bobbyillbrian-max/family-ms/internal/config"
	"github.com/bobbyillbrian-max/family-ms/internal/models"
	"github.com/bobbyillbrian-max/family-ms/internal/service"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.db.RunMigrations(); err != nil {
			return err
		}
		version, dirty, err := a.db.MigrationVersion()
		if err != nil {
			return err
		}
		a.logger.Info("migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
		fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %d\n", version)
		return nil
	},
}

var familyCmd = &cobra.Command{
	Use:   "family",
	Short: "Manage families",
}

var (
	adminName         string
	adminRelationship string
	adminHasChildren  bool
	adminDateOfBirth  string
)

var familyRegisterCmd = &cobra.Command{
	Use:   "register <family-name>",
	Short: "Register a family and its admin member",
	Long: `Register a family and its first (admin) member.

Both the family password and the admin's personal password are prompted for.
When stdin is not a terminal they are read as the first two lines.`,
	Args: cobra.ExactArgs(1),
	RunE: runFamilyRegister,
}

var blobCmd = &cobra.Command{
	Use:   "blob",
	Short: "Inspect blob storage",
}

var blobCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the configured blob backend is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		backend, err := blob.NewBackendFromConfig(ctx, cfg.Blob)
		if err != nil {
			return err
		}
		defer backend.Close()

		if err := backend.ValidateSetup(ctx); err != nil {
			return fmt.Errorf("%s backend: %w", cfg.Blob.Type, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s backend OK\n", cfg.Blob.Type)
		return nil
	},
}

var blobKeygenCmd = &cobra.Command{
	Use:   "keygen <identity-file>",
	Short: "Generate an age identity for encrypting blobs at rest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recipient, err := blob.GenerateIdentityFile(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nPublic key: %s\n", args[0], recipient)
		return nil
	},
}

func init() {
	familyRegisterCmd.Flags().StringVar(&adminName, "admin-name", "", "admin member's full name (required)")
	familyRegisterCmd.Flags().StringVar(&adminRelationship, "relationship", "", "admin member's relationship in the family")
	familyRegisterCmd.Flags().BoolVar(&adminHasChildren, "has-children", false, "admin member has children")
	familyRegisterCmd.Flags().StringVar(&adminDateOfBirth, "date-of-birth", "", "admin member's date of birth (YYYY-MM-DD)")
	familyRegisterCmd.MarkFlagRequired("admin-name")
	familyCmd.AddCommand(familyRegisterCmd)

	blobCmd.AddCommand(blobCheckCmd)
	blobCmd.AddCommand(blobKeygenCmd)
}

func runFamilyRegister(cmd *cobra.Command, args []string) error {
	profile := models.Profile{
		FullName:     adminName,
		Relationship: adminRelationship,
		HasChildren:  adminHasChildren,
	}
	if adminDateOfBirth != "" {
		dob, err := time.Parse(time.DateOnly, adminDateOfBirth)
		if err != nil {
			return fmt.Errorf("invalid --date-of-birth %q: want YYYY-MM-DD", adminDateOfBirth)
		}
		profile.DateOfBirth = &dob
	}

	prompt := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	familyPassword, err := prompt.secret("Family password: ")
	if err != nil {
		return err
	}
	adminPassword, err := prompt.secret("Admin password: ")
	if err != nil {
		return err
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.MigrateOnStart {
		if err := a.db.RunMigrations(); err != nil {
			return err
		}
	}

	identity, _, err := a.identityService()
	if err != nil {
		return err
	}

	family, admin, err := identity.RegisterFamily(cmd.Context(), service.RegisterFamilyInput{
		Name:          args[0],
		Password:      familyPassword,
		Admin:         profile,
		AdminPassword: adminPassword,
	})
	if err != nil {
		return err
	}

	a.logger.Info("family registered", zap.Int64("family_id", family.ID), zap.Int64("admin_id", admin.ID))
	fmt.Fprintf(cmd.OutOrStdout(), "Registered family %q (id %d) with admin %q (id %d)\n",
		family.Name, family.ID, admin.FullName, admin.ID)
	return nil
}

// prompter reads secrets without echo from a terminal, or line by line from anything else
type prompter struct {
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, out: out, reader: bufio.NewReader(in)}
}

func (p *prompter) secret(label string) (string, error) {
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(p.out, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}

	line, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
