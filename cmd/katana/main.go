// Package main implements a thin command-line front end over the katana
// package. The CLI is a demonstration consumer of the public API; it is
// not part of the archive engine itself.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/BlackTechX011/katana/katana"
)

const version = "0.0.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "katana",
		Short:   "Katana: a high-throughput sharded archive format.",
		Version: version,
		Long: `Katana packs files into a single-file container optimized for
multi-core creation, optional AES-256-GCM encryption, and end-to-end
BLAKE3/CRC32 integrity verification.`,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if quiet, _ := cmd.Flags().GetBool("no-style"); quiet {
				pterm.DisableStyling()
				pterm.DisableColor()
			}
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "katana version %s\n" .Version}}`)
	rootCmd.PersistentFlags().Bool("no-style", false, "Disable all styling and colors")

	rootCmd.AddCommand(
		newCreateCmd(),
		newExtractCmd(),
		newListCmd(),
		newTestCmd(),
	)
	return rootCmd
}

func newCreateCmd() *cobra.Command {
	var (
		outputFile string
		password   string
		level      string
		threads    int
	)
	createCmd := &cobra.Command{
		Use:     "create [file/folder...]",
		Short:   "Create a new Katana archive",
		Example: `  katana create ./docs -o archive.katana -p "pass" --level best`,
		Args:    cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			printCommandHeader("ARCHIVE CREATION")
			startTime := time.Now()

			if outputFile == "" {
				handleCmdError("Output file path must be specified with -o or --output.")
			}

			lvl, err := parseLevel(level)
			if err != nil {
				handleCmdError("%v", err)
			}

			pterm.DefaultSection.Println("Initialization")
			pterm.Info.Printf("Target: %s\n", outputFile)
			pterm.Info.Printf("Profile: %s\n", level)
			if password != "" {
				pterm.Info.Println("Security: Enabled (AES-256-GCM)")
			}

			pterm.DefaultSection.Println("Processing")
			bar := progressbar.DefaultBytes(-1, "sharding & compressing")
			opts := katana.CreateOptions{
				Threads:  threads,
				Level:    lvl,
				Password: password,
				Progress: func(s katana.Snapshot) {
					bar.ChangeMax64(int64(s.BytesTotal))
					_ = bar.Set64(int64(s.BytesProcessed))
				},
			}
			err = katana.Create(args, outputFile, opts)
			bar.Finish()
			if err != nil {
				handleCmdError("Failed to create archive: %v", err)
			}

			duration := time.Since(startTime)
			info, _ := os.Stat(outputFile)
			pterm.DefaultSection.Println("Mission Report")
			pterm.Success.Println("Operation Completed Successfully.")

			data := [][]string{
				{"Archive", outputFile},
				{"Size", humanize.Bytes(uint64(info.Size()))},
				{"Time Elapsed", duration.Round(time.Millisecond).String()},
				{"Status", "SEALED"},
			}
			pterm.DefaultTable.WithData(data).WithBoxed().Render()
		},
	}
	createCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Path for the new archive file (required)")
	createCmd.Flags().StringVarP(&password, "password", "p", "", "Password for encryption (disabled if empty)")
	createCmd.Flags().StringVarP(&level, "level", "l", "default", "Profile: fast, default, best")
	createCmd.Flags().IntVarP(&threads, "threads", "t", 0, "Worker thread count (0 = auto)")
	return createCmd
}

func newExtractCmd() *cobra.Command {
	var (
		outputDir       string
		password        string
		stripComponents int
	)
	extractCmd := &cobra.Command{
		Use:     "extract <archive.katana>",
		Short:   "Extract files from an archive",
		Example: `  katana extract data.katana -o ./restored`,
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			printCommandHeader("ARCHIVE EXTRACTION")
			startTime := time.Now()
			archivePath := args[0]

			if password == "" {
				pass, _ := pterm.DefaultInteractiveTextInput.WithMask("*").Show("Enter decryption password (blank if none)")
				password = pass
			}

			pterm.DefaultSection.Println("Processing")
			bar := progressbar.DefaultBytes(-1, fmt.Sprintf("decrypting '%s'", filepath.Base(archivePath)))
			opts := katana.ExtractOptions{
				Password:        password,
				StripComponents: stripComponents,
				Progress: func(s katana.Snapshot) {
					bar.ChangeMax64(int64(s.BytesTotal))
					_ = bar.Set64(int64(s.BytesProcessed))
				},
			}
			err := katana.Extract(archivePath, outputDir, opts)
			bar.Finish()
			if err != nil {
				handleCmdError("Critical Error: %v", err)
			}

			duration := time.Since(startTime)
			pterm.DefaultSection.Println("Mission Report")
			pterm.Success.Println("All files extracted successfully.")

			data := [][]string{
				{"Source", filepath.Base(archivePath)},
				{"Destination", outputDir},
				{"Time Elapsed", duration.Round(time.Millisecond).String()},
				{"Status", "RESTORED"},
			}
			pterm.DefaultTable.WithData(data).WithBoxed().Render()
		},
	}
	extractCmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "Directory to extract files to")
	extractCmd.Flags().StringVarP(&password, "password", "p", "", "Password for decryption (prompts if empty)")
	extractCmd.Flags().IntVar(&stripComponents, "strip-components", 0, "Remove N leading path components on extraction")
	return extractCmd
}

func newTestCmd() *cobra.Command {
	var password string
	testCmd := &cobra.Command{
		Use:     "test <archive.katana>",
		Short:   "Verify the integrity of an archive",
		Example: `  katana test backup.katana -p "s3cr3t!"`,
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			printCommandHeader("INTEGRITY VERIFICATION")
			startTime := time.Now()
			archivePath := args[0]

			if password == "" {
				pass, _ := pterm.DefaultInteractiveTextInput.WithMask("*").Show("Enter decryption password (blank if none)")
				password = pass
			}

			pterm.DefaultSection.Println("Analysis")
			spinner, _ := pterm.DefaultSpinner.WithRemoveWhenDone(true).Start("Verifying checksums...")
			err := katana.Verify(archivePath, katana.ExtractOptions{Password: password})
			spinner.Stop()

			if err != nil {
				pterm.Error.Println("INTEGRITY CHECK FAILED")
				pterm.Error.Println(err.Error())
				os.Exit(1)
			}

			duration := time.Since(startTime)
			pterm.DefaultSection.Println("Mission Report")
			pterm.Success.Println("Verification Passed.")

			data := [][]string{
				{"Target", filepath.Base(archivePath)},
				{"Integrity", "VALID"},
				{"Time Elapsed", duration.Round(time.Millisecond).String()},
				{"Status", "VERIFIED"},
			}
			pterm.DefaultTable.WithData(data).WithBoxed().Render()
		},
	}
	testCmd.Flags().StringVarP(&password, "password", "p", "", "Password for decryption (prompts if empty)")
	return testCmd
}

func newListCmd() *cobra.Command {
	var password string
	listCmd := &cobra.Command{
		Use:     "list <archive.katana>",
		Short:   "List the contents of an archive",
		Example: `  katana list my_archive.katana -p "s3cr3t!"`,
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			printCommandHeader("ARCHIVE CONTENTS")
			archivePath := args[0]

			if password == "" {
				pass, _ := pterm.DefaultInteractiveTextInput.WithMask("*").Show("Enter decryption password (blank if none)")
				password = pass
			}

			spinner, _ := pterm.DefaultSpinner.WithRemoveWhenDone(true).Start("Decrypting metadata...")
			entries, err := katana.List(archivePath, katana.ListOptions{Password: password})
			spinner.Stop()

			if err != nil {
				handleCmdError("Failed to list archive contents: %v", err)
			}

			pterm.Success.Printf("Index retrieved for %s.\n", filepath.Base(archivePath))
			tableData := pterm.TableData{{"Size", "Path"}}
			for _, e := range entries {
				tableData = append(tableData, []string{humanize.Bytes(e.Size), e.Path})
			}
			pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(tableData).Render()
		},
	}
	listCmd.Flags().StringVarP(&password, "password", "p", "", "Password for decryption (prompts if empty)")
	return listCmd
}

func parseLevel(s string) (katana.Level, error) {
	switch s {
	case "fast", "low":
		return katana.LevelFast, nil
	case "best", "max":
		return katana.LevelBest, nil
	case "default", "":
		return katana.LevelDefault, nil
	default:
		return 0, fmt.Errorf("invalid level %q: use fast, default, or best", s)
	}
}

func handleCmdError(format string, a ...interface{}) {
	pterm.Error.Printf(format+"\n", a...)
	os.Exit(1)
}

func printCommandHeader(title string) {
	pterm.DefaultBigText.WithLetters(
		pterm.NewLettersFromStringWithStyle("KATA", pterm.NewStyle(pterm.FgCyan)),
		pterm.NewLettersFromStringWithStyle("NA", pterm.NewStyle(pterm.FgLightMagenta)),
	).Render()
	pterm.DefaultHeader.WithFullWidth().WithBackgroundStyle(pterm.NewStyle(pterm.BgBlack)).WithTextStyle(pterm.NewStyle(pterm.FgCyan, pterm.Bold)).Println(title)
	fmt.Println()
}
