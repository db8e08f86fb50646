package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"poen/internal/core"
	"poen/internal/services"
)

func parseID(kind, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", kind, raw)
	}
	return id, nil
}

// normalizeIBAN upper-cases and strips spaces. "" and "none" clear the IBAN.
func normalizeIBAN(raw string) *string {
	iban := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	if iban == "" || iban == "NONE" {
		return nil
	}
	return &iban
}

func optionalBudget(cmd *cobra.Command, budget int64) *int64 {
	if !cmd.Flags().Changed("budget") {
		return nil
	}
	return &budget
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func printAmounts(w io.Writer, a core.Amounts) {
	tw := newTable(w)
	fmt.Fprintf(tw, "awarded\t%s\n", a.AwardedStr)
	fmt.Fprintf(tw, "spent\t%s\n", a.SpentStr)
	fmt.Fprintf(tw, "left\t%s\n", a.LeftStr)
	fmt.Fprintf(tw, "spent %%\t%s\n", a.PercentageSpentStr)
	_ = tw.Flush()
}

func (c *command) projectCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "project", Short: "Manage projects"}

	var (
		description string
		budget      int64
		withSubs    bool
		hidden      bool
	)
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := c.app.Entities.CreateProject(cmd.Context(), core.Project{
				Name:                args[0],
				Description:         description,
				Budget:              optionalBudget(cmd, budget),
				ContainsSubprojects: withSubs,
				Hidden:              hidden,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	create.Flags().StringVar(&description, "description", "", "project description")
	create.Flags().Int64Var(&budget, "budget", 0, "budget in whole euros; replaces awarded as denominator")
	create.Flags().BoolVar(&withSubs, "subprojects", false, "project money is tracked per subproject")
	create.Flags().BoolVar(&hidden, "hidden", false, "hide the project from listings")

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := c.app.Ledger.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNAME\tIBAN\tSUBPROJECTS")
			for _, p := range projects {
				iban := "-"
				if p.IBAN != nil {
					iban = *p.IBAN
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%t\n", p.ID, p.Name, iban, p.ContainsSubprojects)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(create, list)
	return cmd
}

func (c *command) subprojectCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "subproject", Short: "Manage subprojects"}

	var (
		description string
		budget      int64
	)
	create := &cobra.Command{
		Use:   "create PROJECT_ID NAME",
		Short: "Create a subproject",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			id, err := c.app.Entities.CreateSubproject(cmd.Context(), core.Subproject{
				ProjectID:   projectID,
				Name:        args[1],
				Description: description,
				Budget:      optionalBudget(cmd, budget),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	create.Flags().StringVar(&description, "description", "", "subproject description")
	create.Flags().Int64Var(&budget, "budget", 0, "budget in whole euros")

	cmd.AddCommand(create)
	return cmd
}

func (c *command) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [PROJECT_ID...]",
		Short: "Ingest new bank payments for the given projects, or for all",
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduler := c.app.Scheduler(nil)

			var reports []services.IngestReport
			if len(args) == 0 {
				reports = scheduler.RunOnce(cmd.Context())
			}
			for _, raw := range args {
				id, err := parseID("project", raw)
				if err != nil {
					return err
				}
				report, ran := scheduler.IngestProject(cmd.Context(), id)
				if !ran {
					return fmt.Errorf("project %d is already being ingested", id)
				}
				reports = append(reports, report)
			}

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "PROJECT\tRUN\tNEW PAYMENTS\tSTATUS")
			var failed []error
			for _, r := range reports {
				status := "ok"
				if err := reportError(r); err != nil {
					status = err.Error()
					failed = append(failed, fmt.Errorf("project %d: %w", r.ProjectID, err))
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", r.ProjectID, r.RunID, r.NewPayments(), status)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			return errors.Join(failed...)
		},
	}
}

// reportError is the first error of a run, if any.
func reportError(r services.IngestReport) error {
	if r.Err != nil {
		return r.Err
	}
	for _, a := range r.Accounts {
		if a.Err != nil {
			return fmt.Errorf("account %d: %w", a.AccountID, a.Err)
		}
	}
	return nil
}

func (c *command) refreshIBANsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-ibans PROJECT_ID",
		Short: "Reload the IBANs behind a project's bank link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			if _, err := c.app.Ledger.GetProject(cmd.Context(), id); err != nil {
				return err
			}
			if _, err := c.app.Directory.RefreshIBANs(cmd.Context(), id); err != nil {
				return err
			}
			ibans, err := c.app.Directory.ListIBANs(cmd.Context(), id)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			for _, i := range ibans {
				fmt.Fprintf(tw, "%s\t%s\n", i.IBAN, i.IBANName)
			}
			return tw.Flush()
		},
	}
}

func (c *command) amountsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "amounts", Short: "Show awarded, spent and left"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "project ID",
			Short: "Amounts of a project",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID("project", args[0])
				if err != nil {
					return err
				}
				a, err := c.app.Amounts.ProjectAmounts(cmd.Context(), id)
				if err != nil {
					return err
				}
				printAmounts(cmd.OutOrStdout(), a)
				return nil
			},
		},
		&cobra.Command{
			Use:   "subproject ID",
			Short: "Amounts of a subproject",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID("subproject", args[0])
				if err != nil {
					return err
				}
				a, err := c.app.Amounts.SubprojectAmounts(cmd.Context(), id)
				if err != nil {
					return err
				}
				printAmounts(cmd.OutOrStdout(), a)
				return nil
			},
		},
	)
	return cmd
}

func (c *command) totalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "totals",
		Short: "Show awarded and spent over all projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := c.app.Amounts.Totals(cmd.Context())
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintf(tw, "awarded\t%s\n", t.AwardedStr)
			fmt.Fprintf(tw, "spent\t%s\n", t.SpentStr)
			return tw.Flush()
		},
	}
}

func (c *command) setCredentialCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-credential PROJECT_ID [TOKEN]",
		Short: "Store the bank token of a project; reads stdin when TOKEN is omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			var token string
			if len(args) == 2 {
				token = args[1]
			} else {
				raw, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 4096))
				if err != nil {
					return fmt.Errorf("read token: %w", err)
				}
				token = string(raw)
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("empty token")
			}
			if _, err := c.app.Ledger.GetProject(cmd.Context(), id); err != nil {
				return err
			}
			return c.app.Ledger.PutCredential(cmd.Context(), id, token)
		},
	}
}

func (c *command) setIBANCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{Use: "set-iban", Short: "Set or clear an IBAN and relink payments"}
	project := &cobra.Command{
		Use:   "project ID IBAN|none",
		Short: "Set the IBAN of a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			return c.app.Entities.UpdateProjectIBAN(cmd.Context(), id, normalizeIBAN(args[1]), name)
		},
	}
	subproject := &cobra.Command{
		Use:   "subproject ID IBAN|none",
		Short: "Set the IBAN of a subproject",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("subproject", args[0])
			if err != nil {
				return err
			}
			return c.app.Entities.UpdateSubprojectIBAN(cmd.Context(), id, normalizeIBAN(args[1]), name)
		},
	}
	cmd.PersistentFlags().StringVar(&name, "name", "", "account holder name")
	cmd.AddCommand(project, subproject)
	return cmd
}

func (c *command) paymentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "payments PROJECT_ID",
		Short: "List the payments of a project and its subprojects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			if _, err := c.app.Ledger.GetProject(cmd.Context(), id); err != nil {
				return err
			}
			payments, err := c.app.Payments.ProjectPayments(cmd.Context(), id)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tDATE\tTYPE\tAMOUNT\tCOUNTERPARTY\tDESCRIPTION")
			for _, p := range payments {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
					p.ID, p.Created.Format("2006-01-02"), p.Type,
					p.Amount.Decimal().StringFixed(2), p.Counterparty.Name, p.Description)
			}
			return tw.Flush()
		},
	}
}

func (c *command) paymentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "payment", Short: "Manage manual payments"}

	var (
		projectID    int64
		subprojectID int64
		route        string
		description  string
		counterparty string
	)
	add := &cobra.Command{
		Use:   "add AMOUNT",
		Short: "Add a manual payment to a project or subproject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := core.ParseAmount(args[0])
			if err != nil {
				return err
			}
			p := core.Payment{
				Amount:       core.NewMoney(core.DefaultCurrency, amount),
				Route:        core.Route(route),
				Description:  description,
				Counterparty: core.Alias{Name: counterparty},
			}
			if cmd.Flags().Changed("project") {
				p.ProjectID = &projectID
			}
			if cmd.Flags().Changed("subproject") {
				p.SubprojectID = &subprojectID
			}
			id, err := c.app.Payments.AddManualPayment(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	add.Flags().Int64Var(&projectID, "project", 0, "project id")
	add.Flags().Int64Var(&subprojectID, "subproject", 0, "subproject id")
	add.Flags().StringVar(&route, "route", string(core.RouteSubsidie), "subsidie, inbesteding or aanbesteding")
	add.Flags().StringVar(&description, "description", "", "payment description")
	add.Flags().StringVar(&counterparty, "counterparty", "", "counterparty name")
	add.MarkFlagsOneRequired("project", "subproject")

	remove := &cobra.Command{
		Use:   "remove PAYMENT_ID",
		Short: "Remove a manual payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("payment", args[0])
			if err != nil {
				return err
			}
			return c.app.Payments.RemovePayment(cmd.Context(), id)
		},
	}

	cmd.AddCommand(add, remove)
	return cmd
}

func (c *command) categoryCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "category", Short: "Manage payment categories"}

	var projectID, subprojectID int64
	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a category to a project or subproject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat := core.Category{Name: args[0]}
			if cmd.Flags().Changed("project") {
				cat.ProjectID = &projectID
			}
			if cmd.Flags().Changed("subproject") {
				cat.SubprojectID = &subprojectID
			}
			id, err := c.app.Categories.Create(cmd.Context(), cat)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	add.Flags().Int64Var(&projectID, "project", 0, "project id")
	add.Flags().Int64Var(&subprojectID, "subproject", 0, "subproject id")
	add.MarkFlagsOneRequired("project", "subproject")
	add.MarkFlagsMutuallyExclusive("project", "subproject")

	cmd.AddCommand(add)
	return cmd
}

func (c *command) funderCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "funder", Short: "Manage project funders"}

	add := &cobra.Command{
		Use:   "add PROJECT_ID NAME URL",
		Short: "Credit a funder on a project",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			id, err := c.app.Funders.Save(cmd.Context(), core.Funder{ProjectID: projectID, Name: args[1], URL: args[2]})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list PROJECT_ID",
		Short: "List the funders of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			funders, err := c.app.Funders.ForProject(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNAME\tURL")
			for _, f := range funders {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", f.ID, f.Name, f.URL)
			}
			return tw.Flush()
		},
	}

	remove := &cobra.Command{
		Use:   "remove FUNDER_ID",
		Short: "Remove a funder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("funder", args[0])
			if err != nil {
				return err
			}
			return c.app.Funders.Remove(cmd.Context(), id)
		},
	}

	cmd.AddCommand(add, list, remove)
	return cmd
}

func (c *command) exportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export PROJECT_ID",
		Short: "Write a project's payments as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			project, err := c.app.Ledger.GetProject(cmd.Context(), id)
			if err != nil {
				return err
			}

			if output == "-" {
				_, err := c.app.Exporter.ExportProject(cmd.Context(), cmd.OutOrStdout(), id)
				return err
			}
			if output == "" {
				output = c.app.Exporter.ExportFileName(project)
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			n, err := c.app.Exporter.ExportProject(cmd.Context(), f, id)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d payments to %s\n", n, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", `output file, "-" for stdout (default: timestamped name)`)
	return cmd
}
