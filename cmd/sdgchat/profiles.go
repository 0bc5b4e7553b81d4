package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sdgteacher/sdgchat/internal/memory"
	"github.com/sdgteacher/sdgchat/internal/profile"
	"github.com/sdgteacher/sdgchat/internal/storage"
)

var nowFunc = time.Now

// --- profiles ---

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage local profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		profiles, err := a.profiles.ListProfiles()
		if err != nil {
			return err
		}
		if len(profiles) == 0 {
			printWarning("No profiles yet; start one with sdgchat chat --user <name>")
			return nil
		}

		active := a.chat.Username()
		fmt.Printf("%-2s %-20s %-9s %-8s %s\n", "", "USERNAME", "SESSIONS", "MEMORY", "LAST ACCESS")
		for _, p := range profiles {
			mark := ""
			if p.Username == active {
				mark = "*"
			}
			fmt.Printf("%-2s %-20s %-9d %-8d %s\n", mark, truncate(p.Username, 20), p.SessionsCount,
				len(p.EnvironmentMemory), p.LastAccess.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var profilesShowCmd = &cobra.Command{
	Use:   "show <username>",
	Short: "Show a profile as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.profiles.GetProfile(args[0])
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no profile named %q", args[0])
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

var profilesMemoryCmd = &cobra.Command{
	Use:   "memory [username]",
	Short: "Show environment memory as it is sent to the backend",
	Long: `Show environment memory as it is sent to the backend, room tours first.
Without a username the memory collected while no profile was active is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		var obs []profile.Observation
		if len(args) == 0 {
			obs, err = a.profiles.FallbackMemory()
		} else {
			var p profile.Profile
			p, err = a.profiles.GetProfile(args[0])
			obs = p.EnvironmentMemory
		}
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no profile named %q", args[0])
		}
		if err != nil {
			return err
		}

		if len(obs) == 0 {
			printWarning("No environment memory")
			return nil
		}
		for _, line := range memory.FormatForBackend(obs, nowFunc()) {
			fmt.Println(line)
		}
		return nil
	},
}

var profilesDetailsCmd = &cobra.Command{
	Use:   "details <username>",
	Short: "Set a profile's background and living situation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		background, _ := cmd.Flags().GetString("background")
		living, _ := cmd.Flags().GetString("living")

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.profiles.UpdateDetails(args[0], background, living); err != nil {
			return err
		}
		printSuccess("Updated %s", args[0])
		return nil
	},
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete <username>",
	Short: "Delete a profile and its memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			return fmt.Errorf("this deletes %s and all of its memory; pass --confirm to proceed", args[0])
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.profiles.DeleteProfile(args[0]); err != nil {
			return err
		}
		if a.chat.Username() == args[0] {
			if err := a.chat.EndSession(); err != nil {
				return err
			}
		}
		printSuccess("Deleted %s", args[0])
		return nil
	},
}

func init() {
	profilesDetailsCmd.Flags().String("background", "", "background description")
	profilesDetailsCmd.Flags().String("living", "", "living situation")
	profilesDeleteCmd.Flags().Bool("confirm", false, "confirm deletion")

	profilesCmd.AddCommand(profilesListCmd, profilesShowCmd, profilesMemoryCmd, profilesDetailsCmd, profilesDeleteCmd)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
