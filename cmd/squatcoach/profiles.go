package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/squatcoach/internal/store"
	"github.com/ayusman/squatcoach/internal/thresholds"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage threshold profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		profiles, err := st.Profiles().List()
		if err != nil {
			return err
		}
		active, _ := st.Settings().Get(store.SettingActiveProfile)

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tVERSION\tBUILTIN\tACTIVE\tID")
		for _, p := range profiles {
			mark := ""
			if p.ID == active {
				mark = "*"
			}
			fmt.Fprintf(tw, "%s\t%d\t%t\t%s\t%s\n", p.Name, p.Version, p.Builtin, mark, p.ID)
		}
		return tw.Flush()
	},
}

var profilesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a profile's thresholds as YAML",
	Long:  `Prints a stored profile, or a preset when no profile has that name.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		var th thresholds.Thresholds
		p, err := st.Profiles().GetByName(args[0])
		switch {
		case err == nil:
			th = p.Thresholds
		case errors.Is(err, store.ErrNotFound):
			preset, ok := thresholds.Preset(args[0])
			if !ok {
				return fmt.Errorf("unknown profile %q", args[0])
			}
			th = preset
		default:
			return err
		}

		return writeThresholds(cmd, th)
	},
}

var profilesValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a threshold file",
	Long:  `Loads a YAML or JSON threshold file over the --base preset and reports every invalid field.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		baseName, _ := cmd.Flags().GetString("base")
		base, ok := thresholds.Preset(baseName)
		if !ok {
			return fmt.Errorf("unknown base preset %q", baseName)
		}

		th, err := thresholds.Load(args[0], base)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", args[0])
		if verbose, _ := cmd.Flags().GetBool("print"); verbose {
			return writeThresholds(cmd, th)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)
	profilesCmd.AddCommand(profilesListCmd, profilesShowCmd, profilesValidateCmd)
	profilesValidateCmd.Flags().String("base", "beginner", "Preset the file is applied over")
	profilesValidateCmd.Flags().Bool("print", false, "Print the resulting thresholds")
}

func writeThresholds(cmd *cobra.Command, th thresholds.Thresholds) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(th.Options()); err != nil {
		return err
	}
	return enc.Close()
}
