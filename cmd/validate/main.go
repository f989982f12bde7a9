package main

import (
	"encoding/json"
	"fmt"
	"os"

	"narrative-server/internal/logger"
	"narrative-server/internal/validator"

	"github.com/spf13/cobra"
)

var (
	contentDir string
	indexPath  string
	assetsDir  string
	asJSON     bool
)

var rootCmd = &cobra.Command{
	Use:   "validate",
	Short: "Statically validate the story content graph",
	Long: `Runs the local and global validation passes over the chapter content
directory and the arc index file, and prints a report of errors, warnings,
dead ends and missing assets. Exits non-zero when errors are found.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		zapLogger, err := logger.New(logger.Config{Level: "warn", Encoding: "console"})
		if err != nil {
			return err
		}
		defer zapLogger.Sync()

		var assets validator.AssetResolver
		if assetsDir != "" {
			assets = validator.DirResolver{Root: assetsDir}
		}

		report := validator.New(assets, zapLogger).ValidateContent(contentDir, indexPath)

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			printReport(report)
		}

		if !report.OK() {
			os.Exit(1)
		}
		return nil
	},
}

func printReport(report *validator.Report) {
	printSection := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Printf("%s (%d):\n", title, len(items))
		for _, item := range items {
			fmt.Printf("  - %s\n", item)
		}
	}
	printSection("Errors", report.Errors)
	printSection("Warnings", report.Warnings)
	printSection("Dead ends", report.DeadEnds)
	printSection("Missing assets", report.MissingAssets)
	if report.OK() {
		fmt.Println("Content graph is valid.")
	}
}

func main() {
	rootCmd.Flags().StringVarP(&contentDir, "content", "c", "content/chapters", "chapter content directory")
	rootCmd.Flags().StringVarP(&indexPath, "index", "i", "content/story_arcs.json", "arc index file (empty to skip)")
	rootCmd.Flags().StringVarP(&assetsDir, "assets", "a", "", "assets directory (empty to skip asset checks)")
	rootCmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
