package cli

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/docsier/docsier-go/internal/auth"
	"github.com/docsier/docsier-go/internal/domain"
	"github.com/docsier/docsier-go/internal/tui"
)

func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "docsier",
		Short:         "Legal office assistant client",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(
		newDashboardCommand(),
		newLoginCommand(),
		newLogoutCommand(),
		newClientsCommand(),
		newDocumentsCommand(),
		newDeadlinesCommand(),
		newUrgentCommand(),
		newAnalysisCommand(),
	)
	return cmd
}

func newDashboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Open the interactive dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())
			user, err := a.requireUser(cmd.Context())
			if err != nil {
				return err
			}
			_, err = tea.NewProgram(tui.NewModel(a.agg, *user), tea.WithAltScreen()).Run()
			return err
		},
	}
}

func newLoginCommand() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Establish a session from a login token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			outcome := a.manager.Bootstrap(cmd.Context(), url.Values{"token": {token}})
			switch outcome.State {
			case auth.StateResolved:
				fmt.Printf("signed in as %s <%s>\n", outcome.User.Name, outcome.User.Email)
				return nil
			default:
				if outcome.RedirectURL != "" {
					return fmt.Errorf("login failed; get a fresh token at %s", outcome.RedirectURL)
				}
				return fmt.Errorf("login failed")
			}
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "one-time login token from the website")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())
			if target := a.manager.SignOut(cmd.Context()); target != "" {
				fmt.Println("signed out; continue at " + target)
			} else {
				fmt.Println("signed out")
			}
			return nil
		},
	}
}

func newClientsCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "clients", Short: "Manage clients"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())
			if _, err := a.requireUser(cmd.Context()); err != nil {
				return err
			}
			clients, err := a.agg.LoadClients(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range clients {
				active := " "
				if c.Active {
					active = "*"
				}
				fmt.Printf("%s %-36s  %-24s  %3d docs  %s\n", active, c.ID, c.Name, c.DocumentCount, c.Email)
			}
			return nil
		},
	})

	var nc domain.NewClient
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())
			if _, err := a.requireUser(cmd.Context()); err != nil {
				return err
			}
			created, err := a.agg.CreateClient(cmd.Context(), nc)
			if err != nil {
				return err
			}
			fmt.Printf("created client %s (%s)\n", created.Name, created.ID)
			return nil
		},
	}
	create.Flags().StringVar(&nc.Name, "name", "", "client name")
	create.Flags().StringVar(&nc.Email, "email", "", "contact email")
	create.Flags().StringVar(&nc.Phone, "phone", "", "contact phone")
	create.Flags().StringVar(&nc.Company, "company", "", "company name")
	create.Flags().BoolVar(&nc.Active, "active", true, "mark the client active")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("email")
	cmd.AddCommand(create)
	return cmd
}

func newDocumentsCommand() *cobra.Command {
	var clientID string
	cmd := &cobra.Command{Use: "documents", Short: "Manage a client's documents"}
	cmd.PersistentFlags().StringVar(&clientID, "client", "", "client id (defaults to the first client)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List documents with validation state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())
			if _, err := a.requireUser(cmd.Context()); err != nil {
				return err
			}
			id, err := a.defaultClient(cmd.Context(), clientID)
			if err != nil {
				return err
			}
			snap, err := a.agg.LoadForClient(cmd.Context(), id)
			if err != nil {
				return err
			}
			for _, doc := range snap.Documents {
				validation := "unavailable"
				if doc.Validation != nil {
					validation = string(doc.Validation.ValidationStatus)
				}
				fmt.Printf("%-36s  %-32s  %-10s  %s\n",
					doc.DocumentID, doc.Filename, doc.Classification.DocType, validation)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())
			if _, err := a.requireUser(cmd.Context()); err != nil {
				return err
			}
			id, err := a.defaultClient(cmd.Context(), clientID)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			result, err := a.agg.UploadDocument(cmd.Context(), id, filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			fmt.Printf("uploaded %s as document %s\n", result.Filename, result.DocumentID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())
			if _, err := a.requireUser(cmd.Context()); err != nil {
				return err
			}
			id, err := a.defaultClient(cmd.Context(), clientID)
			if err != nil {
				return err
			}
			if err := a.agg.DeleteDocument(cmd.Context(), id, args[0]); err != nil {
				return err
			}
			fmt.Println("deleted " + args[0])
			return nil
		},
	})
	return cmd
}

func newDeadlinesCommand() *cobra.Command {
	var clientID string
	var completed bool
	cmd := &cobra.Command{Use: "deadlines", Short: "Manage a client's deadlines"}
	cmd.PersistentFlags().StringVar(&clientID, "client", "", "client id (defaults to the first client)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List deadlines",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())
			if _, err := a.requireUser(cmd.Context()); err != nil {
				return err
			}
			id, err := a.defaultClient(cmd.Context(), clientID)
			if err != nil {
				return err
			}
			snap, err := a.agg.LoadForClient(cmd.Context(), id)
			if err != nil {
				return err
			}
			deadlines := snap.ActiveDeadlines
			if completed {
				deadlines = snap.CompletedDeadlines
			}
			printDeadlines(deadlines)
			return nil
		},
	}
	list.Flags().BoolVar(&completed, "completed", false, "show completed instead of active deadlines")
	cmd.AddCommand(list)

	cmd.AddCommand(newMarkDeadlineCommand("complete", true, &clientID))
	cmd.AddCommand(newMarkDeadlineCommand("uncomplete", false, &clientID))
	return cmd
}

func newMarkDeadlineCommand(verb string, complete bool, clientID *string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <deadline-id>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a deadline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())
			if _, err := a.requireUser(cmd.Context()); err != nil {
				return err
			}
			id, err := a.defaultClient(cmd.Context(), *clientID)
			if err != nil {
				return err
			}
			if err := a.agg.MarkDeadline(cmd.Context(), id, args[0], complete); err != nil {
				return err
			}
			fmt.Printf("%sd %s\n", verb, args[0])
			return nil
		},
	}
}

func newUrgentCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "urgent",
		Short: "Show the most urgent deadlines across all clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())
			if _, err := a.requireUser(cmd.Context()); err != nil {
				return err
			}
			deadlines, err := a.agg.UrgentDeadlines(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printDeadlines(deadlines)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of deadlines")
	return cmd
}

func newAnalysisCommand() *cobra.Command {
	var clientID, analysisType string
	cmd := &cobra.Command{
		Use:   "analysis",
		Short: "Show strategic analyses for a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			if analysisType != "" && !domain.AnalysisType(analysisType).Valid() {
				return fmt.Errorf("unknown analysis type %q", analysisType)
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())
			if _, err := a.requireUser(cmd.Context()); err != nil {
				return err
			}
			id, err := a.defaultClient(cmd.Context(), clientID)
			if err != nil {
				return err
			}
			analyses, err := a.agg.Analyses(cmd.Context(), id, domain.AnalysisType(analysisType))
			if err != nil {
				return err
			}
			for _, an := range analyses {
				risk := an.Result.RiskLevel.Presentation().Label
				fmt.Printf("[%s] %s  risk=%s\n", an.AnalysisType, an.CreatedAt.Format("2006-01-02"), risk)
				if an.Result.Summary != "" {
					fmt.Println("  " + an.Result.Summary)
				}
				for _, insight := range an.Result.KeyInsights {
					fmt.Println("  - " + insight)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client id (defaults to the first client)")
	cmd.Flags().StringVar(&analysisType, "type", "", "filter by analysis type")
	return cmd
}

func printDeadlines(deadlines []domain.Deadline) {
	for _, dl := range deadlines {
		p := dl.RiskLevel.Presentation()
		fmt.Printf("%-36s  %-10s  %-8s  %4dd  %s\n",
			dl.ID, dl.Date, p.Label, dl.WorkingDaysRemaining, dl.Description)
	}
}
