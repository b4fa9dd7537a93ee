package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/kian/internal/config"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readJSONInput reads a JSON object from path, or from stdin when path
// is empty or "-".
func readJSONInput(path string) (map[string]any, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return record, nil
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and LM Studio status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/healthz")
		if err != nil {
			printStatus("Server", "stopped")
			printStatus("LM Studio", "%s (start the server to check)", cfg.LMStudio.BaseURL)
			printStatus("Data dir", "%s", cfg.Storage.DataDir)
			return nil
		}
		resp.Body.Close()
		if resp.StatusCode != 200 {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
			return nil
		}
		printStatus("Server", "running on port %d", cfg.Server.Port)

		statusResp, err := client.get(cmd.Context(), "/v1/status")
		if err != nil {
			return err
		}
		var prereq struct {
			Ready      bool     `json:"ready"`
			Connection bool     `json:"lm_studio_connection"`
			Errors     []string `json:"errors"`
			Warnings   []string `json:"warnings"`
		}
		if err := decodeJSON(statusResp, &prereq); err != nil {
			return err
		}

		if prereq.Connection {
			printStatus("LM Studio", "running at %s", cfg.LMStudio.BaseURL)
		} else {
			printStatus("LM Studio", "not reachable at %s", cfg.LMStudio.BaseURL)
		}
		printStatus("Model", "%s", cfg.LMStudio.Model)
		printStatus("Data dir", "%s", cfg.Storage.DataDir)

		for _, w := range prereq.Warnings {
			printWarning("%s", w)
		}
		for _, e := range prereq.Errors {
			printError("%s", e)
		}
		if prereq.Ready {
			printSuccess("Ready for analyses")
		}
		return nil
	},
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models served by LM Studio",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/models")
		if err != nil {
			return err
		}

		var list struct {
			Data []struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}

		if len(list.Data) == 0 {
			fmt.Println("No models loaded.")
			return nil
		}
		for _, m := range list.Data {
			fmt.Println(m.ID)
		}
		return nil
	},
}

// --- templates ---

var templatesCmd = &cobra.Command{
	Use:   "templates [name]",
	Short: "List analysis templates, or show one as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			resp, err := client.get(cmd.Context(), "/v1/templates/"+url.PathEscape(args[0]))
			if err != nil {
				return err
			}
			var tpl any
			if err := decodeJSON(resp, &tpl); err != nil {
				return err
			}
			return printJSON(tpl)
		}

		resp, err := client.get(cmd.Context(), "/v1/templates")
		if err != nil {
			return err
		}
		var templates []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Format      string `json:"format"`
		}
		if err := decodeJSON(resp, &templates); err != nil {
			return err
		}

		for _, t := range templates {
			fmt.Printf("%s  %s (%s)\n", colorize(colorBold, t.Name), t.Description, t.Format)
		}
		return nil
	},
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage company profiles",
}

var profileAddCmd = &cobra.Command{
	Use:   "add [file]",
	Short: "Save a company profile from a JSON file or stdin",
	Long: `Save a company profile from a JSON file or stdin.

Examples:
  kian profile add firma.json
  cat firma.json | kian profile add`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		record, err := readJSONInput(path)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/profiles", record)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Saved profile %s", result["id"])
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored company profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/profiles")
		if err != nil {
			return err
		}
		var profiles []struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &profiles); err != nil {
			return err
		}

		if len(profiles) == 0 {
			fmt.Println("No profiles stored.")
			return nil
		}
		for _, p := range profiles {
			fmt.Printf("%s  %s  %s\n", colorize(colorCyan, p.ID), p.CreatedAt, p.Name)
		}
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a stored company profile as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/profiles/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var record any
		if err := decodeJSON(resp, &record); err != nil {
			return err
		}
		return printJSON(record)
	},
}

var profileRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a company profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/v1/profiles/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted profile %s", args[0])
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileRmCmd)
}

// --- usecase ---

var usecaseCmd = &cobra.Command{
	Use:   "usecase",
	Short: "Manage use cases",
}

var usecaseAddCmd = &cobra.Command{
	Use:   "add [file]",
	Short: "Save a use case from a JSON file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		record, err := readJSONInput(path)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/usecases", record)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Saved use case %s", result["id"])
		return nil
	},
}

var usecaseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored use cases",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/usecases")
		if err != nil {
			return err
		}
		var cases []struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &cases); err != nil {
			return err
		}

		if len(cases) == 0 {
			fmt.Println("No use cases stored.")
			return nil
		}
		for _, uc := range cases {
			fmt.Printf("%s  %s  %s\n", colorize(colorCyan, uc.ID), uc.CreatedAt, uc.Title)
		}
		return nil
	},
}

var usecaseShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a stored use case as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/usecases/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var record any
		if err := decodeJSON(resp, &record); err != nil {
			return err
		}
		return printJSON(record)
	},
}

var usecaseRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a use case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/v1/usecases/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted use case %s", args[0])
		return nil
	},
}

func init() {
	usecaseCmd.AddCommand(usecaseAddCmd)
	usecaseCmd.AddCommand(usecaseListCmd)
	usecaseCmd.AddCommand(usecaseShowCmd)
	usecaseCmd.AddCommand(usecaseRmCmd)
}

// --- analyze ---

// analysisRefBody builds the request body shared by analyze, feasibility
// and roadmap: stored profile + stored use case, by ID.
func analysisRefBody(cmd *cobra.Command) (map[string]any, error) {
	profileID, _ := cmd.Flags().GetString("profile")
	useCaseID, _ := cmd.Flags().GetString("usecase")
	if profileID == "" || useCaseID == "" {
		return nil, fmt.Errorf("--profile and --usecase are required")
	}
	return map[string]any{
		"profile_id":  profileID,
		"use_case_id": useCaseID,
	}, nil
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a full analysis for a stored profile and use case",
	Long: `Run a full analysis for a stored profile and use case.

The result record is printed as JSON and persisted; inspect it later
with "kian results show <id>".

Examples:
  kian analyze --profile <id> --usecase <id>
  kian analyze --profile <id> --usecase <id> --template roi_analysis`,
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := analysisRefBody(cmd)
		if err != nil {
			return err
		}
		if template, _ := cmd.Flags().GetString("template"); template != "" {
			body["template"] = template
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Running analysis, this can take a few minutes...")
		resp, err := client.post(cmd.Context(), "/v1/analyses", body)
		if err != nil {
			return err
		}

		var rec map[string]any
		if err := decodeJSON(resp, &rec); err != nil {
			return err
		}
		if err := printJSON(rec); err != nil {
			return err
		}

		if id, ok := rec["id"].(string); ok {
			conf, _ := rec["confidence_score"].(float64)
			printSuccess("Analysis %s saved (confidence %.2f)", id, conf)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().String("profile", "", "stored profile ID")
	analyzeCmd.Flags().String("usecase", "", "stored use case ID")
	analyzeCmd.Flags().String("template", "", "analysis template (default use_case_analysis)")
}

// --- feasibility ---

var feasibilityCmd = &cobra.Command{
	Use:   "feasibility",
	Short: "Quick feasibility check for a stored profile and use case",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := analysisRefBody(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Checking feasibility...")
		resp, err := client.post(cmd.Context(), "/v1/feasibility", body)
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if err := printJSON(result); err != nil {
			return err
		}

		if msg, ok := result["error"].(string); ok && msg != "" {
			return fmt.Errorf("feasibility check failed: %s", msg)
		}
		conf, _ := result["confidence"].(float64)
		if feasible, _ := result["feasible"].(bool); feasible {
			printSuccess("Feasible (confidence %.2f)", conf)
		} else {
			printWarning("Not feasible (confidence %.2f)", conf)
		}
		return nil
	},
}

func init() {
	feasibilityCmd.Flags().String("profile", "", "stored profile ID")
	feasibilityCmd.Flags().String("usecase", "", "stored use case ID")
}

// --- compare ---

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Rank several stored use cases for one profile",
	Long: `Rank several stored use cases for one profile by feasibility.

Example:
  kian compare --profile <id> --usecase <id> --usecase <id>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		profileID, _ := cmd.Flags().GetString("profile")
		useCaseIDs, _ := cmd.Flags().GetStringArray("usecase")
		if profileID == "" {
			return fmt.Errorf("--profile is required")
		}
		if len(useCaseIDs) < 2 {
			return fmt.Errorf("at least two --usecase flags are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Comparing %d use cases, this can take a while...", len(useCaseIDs))
		resp, err := client.post(cmd.Context(), "/v1/compare", map[string]any{
			"profile_id":   profileID,
			"use_case_ids": useCaseIDs,
		})
		if err != nil {
			return err
		}

		var cmp struct {
			TotalUseCases int    `json:"total_use_cases"`
			FeasibleCount int    `json:"feasible_count"`
			Summary       string `json:"comparison_summary"`
			Ranking       []struct {
				Title      string  `json:"use_case_title"`
				Feasible   bool    `json:"feasible"`
				Level      string  `json:"feasibility_level"`
				Confidence float64 `json:"confidence"`
			} `json:"ranking"`
			Recommendation *struct {
				Title string `json:"use_case_title"`
			} `json:"recommendation"`
		}
		if err := decodeJSON(resp, &cmp); err != nil {
			return err
		}

		for i, r := range cmp.Ranking {
			verdict := colorize(colorGreen, "feasible")
			if !r.Feasible {
				verdict = colorize(colorRed, "not feasible")
			}
			fmt.Printf("%d. %s — %s", i+1, colorize(colorBold, r.Title), verdict)
			if r.Level != "" {
				fmt.Printf(" (%s)", r.Level)
			}
			fmt.Printf(" [confidence %.2f]\n", r.Confidence)
		}
		if cmp.Summary != "" {
			fmt.Printf("\n%s\n", cmp.Summary)
		}

		if cmp.Recommendation != nil {
			printSuccess("Recommended: %s", cmp.Recommendation.Title)
		} else {
			printWarning("No recommendation (%d of %d feasible)", cmp.FeasibleCount, cmp.TotalUseCases)
		}
		return nil
	},
}

func init() {
	compareCmd.Flags().String("profile", "", "stored profile ID")
	compareCmd.Flags().StringArray("usecase", nil, "stored use case ID (repeat for each candidate)")
}

// --- roadmap ---

var roadmapCmd = &cobra.Command{
	Use:   "roadmap",
	Short: "Build an implementation roadmap for a stored profile and use case",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := analysisRefBody(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Building roadmap, this can take a few minutes...")
		resp, err := client.post(cmd.Context(), "/v1/roadmap", body)
		if err != nil {
			return err
		}

		var road map[string]any
		if err := decodeJSON(resp, &road); err != nil {
			return err
		}
		if err := printJSON(road); err != nil {
			return err
		}

		phases, _ := road["project_phases"].([]any)
		weeks, _ := road["total_duration_weeks"].(float64)
		printSuccess("Roadmap with %d phases (about %.0f weeks)", len(phases), weeks)
		return nil
	},
}

func init() {
	roadmapCmd.Flags().String("profile", "", "stored profile ID")
	roadmapCmd.Flags().String("usecase", "", "stored use case ID")
}

// --- results ---

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Browse stored analysis results",
}

type resultRow struct {
	ID           string  `json:"id"`
	CreatedAt    string  `json:"created_at"`
	Template     string  `json:"template"`
	CompanyName  string  `json:"company_name"`
	UseCaseTitle string  `json:"use_case_title"`
	Status       string  `json:"status"`
	Confidence   float64 `json:"confidence_score"`
}

func printResultRows(rows []resultRow) {
	if len(rows) == 0 {
		fmt.Println("No analyses found.")
		return
	}
	for _, r := range rows {
		title := r.UseCaseTitle
		if len(title) > 60 {
			title = title[:60] + "..."
		}
		fmt.Printf("%s  %s  %-22s  %.2f  %s — %s\n",
			colorize(colorCyan, r.ID),
			r.CreatedAt,
			r.Template,
			r.Confidence,
			r.CompanyName,
			title,
		)
	}
}

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored analyses, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		template, _ := cmd.Flags().GetString("template")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/v1/analyses?limit=%d", limit)
		if template != "" {
			path += "&template=" + url.QueryEscape(template)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var rows []resultRow
		if err := decodeJSON(resp, &rows); err != nil {
			return err
		}
		printResultRows(rows)
		return nil
	},
}

var resultsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one analysis with its full result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/analyses/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var record any
		if err := decodeJSON(resp, &record); err != nil {
			return err
		}
		return printJSON(record)
	},
}

var resultsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a stored analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/v1/analyses/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted analysis %s", args[0])
		return nil
	},
}

var resultsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search analyses by company, use case or summary",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/v1/analyses/search?q=%s&limit=%d", url.QueryEscape(query), limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var rows []resultRow
		if err := decodeJSON(resp, &rows); err != nil {
			return err
		}
		printResultRows(rows)
		return nil
	},
}

func init() {
	resultsListCmd.Flags().Int("limit", 20, "maximum number of analyses to list")
	resultsListCmd.Flags().String("template", "", "only analyses produced by this template")
	resultsSearchCmd.Flags().Int("limit", 20, "maximum number of results")
	resultsCmd.AddCommand(resultsListCmd)
	resultsCmd.AddCommand(resultsShowCmd)
	resultsCmd.AddCommand(resultsRmCmd)
	resultsCmd.AddCommand(resultsSearchCmd)
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate statistics over stored analyses",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/analyses/stats")
		if err != nil {
			return err
		}

		var s struct {
			Total            int            `json:"total_analyses"`
			AvgConfidence    float64        `json:"average_confidence"`
			SuccessRate      float64        `json:"success_rate"`
			HighConfidence   int            `json:"high_confidence_count"`
			MediumConfidence int            `json:"medium_confidence_count"`
			LowConfidence    int            `json:"low_confidence_count"`
			ByTemplate       map[string]int `json:"templates_used"`
		}
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}

		printStatus("Analyses", "%d", s.Total)
		if s.Total == 0 {
			return nil
		}
		printStatus("Success rate", "%.0f%%", s.SuccessRate*100)
		printStatus("Avg confidence", "%.2f", s.AvgConfidence)
		printStatus("Confidence", "%d high / %d medium / %d low",
			s.HighConfidence, s.MediumConfidence, s.LowConfidence)

		templates := make([]string, 0, len(s.ByTemplate))
		for name := range s.ByTemplate {
			templates = append(templates, name)
		}
		sort.Strings(templates)
		for _, name := range templates {
			printStatus(name, "%d", s.ByTemplate[name])
		}
		return nil
	},
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all stored data as JSON files",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			return fmt.Errorf("--dir is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/export", map[string]any{"dir": dir})
		if err != nil {
			return err
		}

		var manifest struct {
			Dir      string `json:"dir"`
			Profiles int    `json:"profiles"`
			UseCases int    `json:"use_cases"`
			Analyses int    `json:"analyses"`
		}
		if err := decodeJSON(resp, &manifest); err != nil {
			return err
		}

		printSuccess("Exported %d profiles, %d use cases, %d analyses to %s",
			manifest.Profiles, manifest.UseCases, manifest.Analyses, manifest.Dir)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("dir", "", "target directory for the export")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
