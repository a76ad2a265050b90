package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tingold/srcompare"
	"github.com/tingold/srcompare/viewer"
)

var verbose bool
var geojsonOut bool
var configFile string
var resampling string
var cfg = srcompare.DefaultConfig()

var rootCmd = &cobra.Command{
	Use:   "srcompare",
	Short: "inspect and compare rasters before and after super-resolution",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect file.tif [file.tif...]",
	Short: "print dimensions, georeferencing and per-band statistics",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if geojsonOut {
			rasters := make([]*srcompare.Raster, 0, len(args))
			for _, path := range args {
				r, err := srcompare.Open(path, nil)
				if err != nil {
					return err
				}
				defer r.Close()
				rasters = append(rasters, r)
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(srcompare.FootprintCollection(rasters...))
		}

		for i, path := range args {
			logrus.WithField("path", path).Debug("inspecting")
			rep, err := srcompare.Inspect(path)
			if err != nil {
				return err
			}
			if i > 0 {
				fmt.Fprintln(out)
			}
			if err := rep.WriteText(out); err != nil {
				return err
			}
		}
		return nil
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare original.tif super-resolved.tif",
	Short: "print the resolution gain of a super-resolved product",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		orig, err := srcompare.Open(args[0], nil)
		if err != nil {
			return err
		}
		defer orig.Close()
		sr, err := srcompare.Open(args[1], nil)
		if err != nil {
			return err
		}
		defer sr.Close()

		return srcompare.CompareResolution(orig, sr).WriteText(cmd.OutOrStdout())
	},
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "write the HTML slider comparison",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildConfig(cmd)
		if err != nil {
			return err
		}

		page, err := srcompare.Build(c, logrus.StandardLogger())
		if err != nil {
			return err
		}
		if err := viewer.WriteFile(c.Output, page); err != nil {
			return fmt.Errorf("failed to write %s: %w", c.Output, err)
		}

		fields := logrus.Fields{"output": c.Output}
		if fi, err := os.Stat(c.Output); err == nil {
			fields["mb"] = fmt.Sprintf("%.1f", float64(fi.Size())/(1024*1024))
		}
		logrus.WithFields(fields).Info("comparison written")
		return nil
	},
}

// buildConfig loads --config, if any, then applies the flags that were set.
func buildConfig(cmd *cobra.Command) (srcompare.Config, error) {
	c := srcompare.DefaultConfig()
	if configFile != "" {
		var err error
		if c, err = srcompare.LoadConfig(configFile); err != nil {
			return c, err
		}
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("original", func() { c.Original = cfg.Original })
	set("sr-tci", func() { c.SRTCI = cfg.SRTCI })
	set("sr-irp", func() { c.SRIRP = cfg.SRIRP })
	set("sr-ndvi", func() { c.SRNDVI = cfg.SRNDVI })
	set("output", func() { c.Output = cfg.Output })
	set("max-dim", func() { c.MaxDim = cfg.MaxDim })
	set("quality", func() { c.JPEGQuality = cfg.JPEGQuality })
	set("low-pct", func() { c.LowPct = cfg.LowPct })
	set("high-pct", func() { c.HighPct = cfg.HighPct })
	set("title", func() { c.Title = cfg.Title })
	set("location", func() { c.Location = cfg.Location })
	set("original-label", func() { c.OriginalLabel = cfg.OriginalLabel })
	set("enhanced-label", func() { c.EnhancedLabel = cfg.EnhancedLabel })
	set("original-date", func() { c.OriginalDate = cfg.OriginalDate })
	set("enhanced-date", func() { c.EnhancedDate = cfg.EnhancedDate })

	if flags.Changed("resampling") {
		m, err := srcompare.ParseResampling(resampling)
		if err != nil {
			return c, err
		}
		c.Resampling = m
	}
	return c, c.Validate()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	inspectCmd.Flags().BoolVar(&geojsonOut, "geojson", false, "print raster footprints as a GeoJSON FeatureCollection")

	f := buildCmd.Flags()
	f.StringVar(&configFile, "config", "", "YAML configuration file; flags override its values")
	f.StringVar(&cfg.Original, "original", "", "original multi-band raster")
	f.StringVar(&cfg.SRTCI, "sr-tci", "", "super-resolved true color product (defines the output grid)")
	f.StringVar(&cfg.SRIRP, "sr-irp", "", "super-resolved false color product")
	f.StringVar(&cfg.SRNDVI, "sr-ndvi", "", "super-resolved NDVI product")
	f.StringVarP(&cfg.Output, "output", "o", cfg.Output, "output HTML file")
	f.IntVar(&cfg.MaxDim, "max-dim", cfg.MaxDim, "maximum image dimension in the page")
	f.IntVar(&cfg.JPEGQuality, "quality", cfg.JPEGQuality, "JPEG quality (1-100)")
	f.Float64Var(&cfg.LowPct, "low-pct", cfg.LowPct, "lower stretch percentile")
	f.Float64Var(&cfg.HighPct, "high-pct", cfg.HighPct, "upper stretch percentile")
	f.StringVar(&resampling, "resampling", cfg.Resampling.String(), "nearest or bilinear")
	f.StringVar(&cfg.Title, "title", cfg.Title, "page title")
	f.StringVar(&cfg.Location, "location", "", "location shown in the info panel")
	f.StringVar(&cfg.OriginalLabel, "original-label", cfg.OriginalLabel, "label of the left image")
	f.StringVar(&cfg.EnhancedLabel, "enhanced-label", cfg.EnhancedLabel, "label of the right image")
	f.StringVar(&cfg.OriginalDate, "original-date", "", "acquisition date of the original")
	f.StringVar(&cfg.EnhancedDate, "enhanced-date", "", "acquisition date of the super-resolved product")

	rootCmd.AddCommand(inspectCmd, compareCmd, buildCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
