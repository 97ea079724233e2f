package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "trendradar",
		Short:         "Score product metrics per category and flag trending items",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $TRENDRADAR_CONFIG)")

	root.AddCommand(serveCmd())
	root.AddCommand(scoreCmd())
	root.AddCommand(sampleCmd())

	return root
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: from config)")
	return cmd
}

type scoreFlags struct {
	threshold      float64
	externalWeight float64
	category       string
	top            int
	all            bool
	format         string
}

func scoreCmd() *cobra.Command {
	var f scoreFlags

	cmd := &cobra.Command{
		Use:   "score FILE",
		Short: "Score a CSV, TSV or JSON export and print the ranking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				threshold *float64
				beta      *float64
			)
			if cmd.Flags().Changed("threshold") {
				threshold = &f.threshold
			}
			if cmd.Flags().Changed("external-weight") {
				beta = &f.externalWeight
			}
			return runScore(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], threshold, beta, f)
		},
	}

	cmd.Flags().Float64Var(&f.threshold, "threshold", 0, "trending cutoff (default: from config)")
	cmd.Flags().Float64Var(&f.externalWeight, "external-weight", 0, "share of the score taken by the external signal (default: from config)")
	cmd.Flags().StringVar(&f.category, "category", "", "rank a single category")
	cmd.Flags().IntVar(&f.top, "top", 0, "max results to show (0 shows all)")
	cmd.Flags().BoolVar(&f.all, "all", true, "include records below the threshold")
	cmd.Flags().StringVar(&f.format, "format", "table", "output format: table, json or yaml")
	return cmd
}

func sampleCmd() *cobra.Command {
	var (
		seed       uint64
		categories []string
		products   int
		turkish    bool
		missing    float64
		noise      float64
		out        string
	)

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write a synthetic product export as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSample(cmd.OutOrStdout(), out, sampleConfig(seed, categories, products, turkish, missing, noise))
		},
	}

	cmd.Flags().Uint64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().StringSliceVar(&categories, "categories", nil, "category names (e.g., shoes,bags)")
	cmd.Flags().IntVar(&products, "products", 25, "products per category")
	cmd.Flags().BoolVar(&turkish, "turkish", false, "Turkish headers and comma decimals")
	cmd.Flags().Float64Var(&missing, "missing-rate", 0, "fraction of blank metric cells")
	cmd.Flags().Float64Var(&noise, "noise-rate", 0, "fraction of non-numeric metric cells")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: stdout)")
	return cmd
}
