package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sparta-security/sparta/internal/aggregator"
	"github.com/sparta-security/sparta/internal/collector"
	"github.com/sparta-security/sparta/internal/config"
	"github.com/sparta-security/sparta/internal/domain"
	"github.com/sparta-security/sparta/internal/executor"
	"github.com/sparta-security/sparta/internal/orchestrator"
	"github.com/sparta-security/sparta/internal/planner"
	"github.com/sparta-security/sparta/internal/retry"
	"github.com/sparta-security/sparta/internal/scanner"
	"github.com/sparta-security/sparta/internal/state"
	"github.com/sparta-security/sparta/internal/tokens"
)

var (
	outputJSON bool
	scanDate   string
	batchIDs   string
)

var rootCmd = &cobra.Command{
	Use:   "sparta",
	Short: "Organization vulnerability scan orchestration",
	Long: `Sparta coordinates vulnerability scanning across the repositories of
one or more GitHub organizations.

It partitions large repository sets into bounded batches for parallel
execution, tracks crash-recoverable per-repository progress in committed
state files, retries transient failures with capped exponential backoff,
and merges per-batch outcomes into one consistent per-organization state.`,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run the full scan orchestration",
	Long:  `Fetch repositories, plan batches and scan every configured organization for the current date.`,
	RunE:  runScan,
}

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Fetch organization repositories",
	Long:  `List the repositories of every configured organization and write repos.json.`,
	RunE:  runRepos,
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Plan repository batches",
	Long:  `Partition the configured organizations' repositories into batches and write repo-batches.json plus the execution matrix.`,
	RunE:  runBatch,
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect scan state",
}

var stateSummaryCmd = &cobra.Command{
	Use:   "summary [org]",
	Short: "Show scan progress for an organization",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateSummary,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [org]",
	Short: "Merge batch result artifacts into the scan state",
	Long:  `Merge the result artifacts of independently-executed batches into the organization's authoritative scan state.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runReconcile,
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Aggregate and index stored scan results",
	RunE:  runAggregate,
}

var queryCveCmd = &cobra.Command{
	Use:   "query-cve [cve-id]",
	Short: "Search stored scan results for a CVE",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueryCve,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&scanDate, "date", "", "scan date (YYYYMMDD, default today)")
	reconcileCmd.Flags().StringVar(&batchIDs, "batch-ids", "", "comma-separated batch IDs to merge")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(reposCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateSummaryCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(queryCveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func resolveScanDate() string {
	if scanDate != "" {
		return scanDate
	}
	return orchestrator.ScanDate(time.Now())
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store := state.NewStore(cfg.StateDir, cfg.BatchSize, cfg.MaxRetries)
	exec := executor.New(
		scanner.NewGitCloner(cfg.CloneTimeout),
		scanner.NewTrivyScanner(cfg.ScanTimeout, ""),
		retry.NewClassifier(),
		cfg.MaxRetries,
		cfg.ReportsDir,
		"",
		cfg.SelfRepo,
	)
	provider := tokens.NewMapProvider(cfg.TokenMap, cfg.DefaultToken)

	orch := orchestrator.New(cfg, store, provider, collector.NewGitHubLister, exec, resolveScanDate())
	outcomes, err := orch.Run(context.Background())
	if err != nil {
		return fmt.Errorf("scan run aborted: %w", err)
	}

	if outputJSON {
		return json.NewEncoder(os.Stdout).Encode(outcomes)
	}

	fmt.Println("\nScan run complete")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Org", "Total", "Completed", "Failed", "Pending", "Warning"})
	for _, outcome := range outcomes {
		if outcome.Skipped {
			table.Append([]string{outcome.Org, "-", "-", "-", "-", outcome.Warning})
			continue
		}
		s := outcome.Summary
		table.Append([]string{
			outcome.Org,
			strconv.Itoa(s.TotalRepos),
			strconv.Itoa(s.Completed),
			strconv.Itoa(s.Failed),
			strconv.Itoa(s.Pending),
			outcome.Warning,
		})
	}
	table.Render()
	return nil
}

// fetchOrgRepos lists every configured organization's repositories,
// skipping organizations whose credential or listing fails.
func fetchOrgRepos(ctx context.Context, cfg *config.Config) []domain.OrgRepos {
	provider := tokens.NewMapProvider(cfg.TokenMap, cfg.DefaultToken)

	var orgRepos []domain.OrgRepos
	for _, org := range cfg.Orgs {
		token, err := provider.TokenForOrg(org)
		if err != nil {
			fmt.Printf("Warning: skipping %s: %v\n", org, err)
			continue
		}
		repos, err := collector.NewGitHubLister(token).ListRepositories(ctx, org)
		if err != nil {
			fmt.Printf("Warning: skipping %s: %v\n", org, err)
			continue
		}
		fmt.Printf("Found %d repositories in %s\n", len(repos), org)
		orgRepos = append(orgRepos, domain.OrgRepos{Org: org, Repos: repos})
	}
	return orgRepos
}

func runRepos(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orgRepos := fetchOrgRepos(context.Background(), cfg)

	// Single-org runs keep the flat repos.json format for backward
	// compatibility; multi-org runs group repositories per org.
	var payload any = orgRepos
	if !cfg.MultiOrg() && len(orgRepos) == 1 {
		payload = orgRepos[0].Repos
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode repos: %w", err)
	}
	if err := os.WriteFile("repos.json", data, 0o644); err != nil {
		return fmt.Errorf("failed to write repos.json: %w", err)
	}
	fmt.Println("Wrote repos.json")
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orgRepos := fetchOrgRepos(context.Background(), cfg)
	plan, err := planner.Plan(orgRepos, cfg.BatchSize, cfg.MultiOrg())
	if err != nil {
		return err
	}

	if err := planner.WritePlan(plan, planner.BatchFileName); err != nil {
		return err
	}
	if err := planner.WriteMatrixOutput(plan, cfg.OutputPath); err != nil {
		return err
	}

	fmt.Printf("Split %d repositories into %d batch(es) (batch size: %d)\n",
		plan.TotalRepos, plan.TotalBatches, cfg.BatchSize)
	for _, batch := range plan.Batches {
		fmt.Printf("  - %s: %d repos (batch %d/%d)\n",
			batch.BatchID, len(batch.Repos), batch.BatchIndex+1, batch.TotalBatches)
	}
	return nil
}

func runStateSummary(cmd *cobra.Command, args []string) error {
	org := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store := state.NewStore(cfg.StateDir, cfg.BatchSize, cfg.MaxRetries)
	summary, err := store.Summary(org, resolveScanDate())
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	if outputJSON {
		return json.NewEncoder(os.Stdout).Encode(summary)
	}

	fmt.Printf("\nScan State: %s on %s\n\n", summary.Org, summary.ScanDate)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Total Repositories", strconv.Itoa(summary.TotalRepos)})
	table.Append([]string{"Completed", strconv.Itoa(summary.Completed)})
	table.Append([]string{"Failed", strconv.Itoa(summary.Failed)})
	table.Append([]string{"Pending", strconv.Itoa(summary.Pending)})
	table.Append([]string{"Progress", fmt.Sprintf("%.2f%%", summary.ProgressPercent)})
	table.Render()
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	org := args[0]
	if batchIDs == "" {
		return fmt.Errorf("no batch IDs given (use --batch-ids)")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var ids []string
	for _, id := range strings.Split(batchIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	store := state.NewStore(cfg.StateDir, cfg.BatchSize, cfg.MaxRetries)
	orch := orchestrator.New(cfg, store, nil, nil, nil, resolveScanDate())
	if err := orch.ReconcileArtifacts(org, ids); err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}
	fmt.Printf("Reconciled %d batch(es) into state for %s\n", len(ids), org)
	return nil
}

func runAggregate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	reports, err := aggregator.LoadReports(cfg.ReportsDir)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		return fmt.Errorf("no reports found in %s", cfg.ReportsDir)
	}
	fmt.Printf("Loaded %d scan reports\n", len(reports))

	stats := aggregator.Aggregate(reports)
	if err := aggregator.WriteOutputs(stats, "aggregated"); err != nil {
		return err
	}

	fmt.Println(aggregator.SummaryText(stats))
	fmt.Println("Aggregation complete. Output saved to aggregated/")
	return nil
}

func runQueryCve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	findings, err := aggregator.FindCVE(cfg.ReportsDir, args[0])
	if err != nil {
		return err
	}

	if outputJSON {
		return json.NewEncoder(os.Stdout).Encode(findings)
	}

	if len(findings) == 0 {
		fmt.Println("No findings for CVE in scanned repositories.")
		os.Exit(1)
	}

	fmt.Printf("\nFound %d occurrence(s) across repositories:\n\n", len(findings))
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Repository", "Severity", "Package", "Version", "Fixed In", "Scan Date"})
	for _, f := range findings {
		table.Append([]string{f.Repository, f.Severity, f.Package, f.PackageVersion, f.FixedVersion, f.ScanDate})
	}
	table.Render()
	return nil
}
