package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pooledinv/internal/lock"
)

var lockForce bool

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect or clear the database lock marker",
}

var lockShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current lock marker, if any",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := ResolveDB()
		if err != nil {
			return err
		}
		lockPath := lock.DefaultPath(path)
		info, held, err := lock.Read(lockPath)
		if err != nil {
			return err
		}
		if !held {
			fmt.Printf("No lock: %s\n", lockPath)
			return nil
		}
		fmt.Printf("Lock file: %s\n\n%s", lockPath, info.Raw)
		if age := info.Age(time.Now()); age > 0 {
			fmt.Printf("\nHeld since %s\n", humanize.Time(info.Locked))
		}
		return nil
	},
}

var lockClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove a stale lock marker left by a crashed run",
	Long: `Removes the lock marker. Only do this after confirming that the holder
shown by 'lock show' is no longer writing to the database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := ResolveDB()
		if err != nil {
			return err
		}
		lockPath := lock.DefaultPath(path)
		info, held, err := lock.Read(lockPath)
		if err != nil {
			return err
		}
		if !held {
			fmt.Printf("No lock: %s\n", lockPath)
			return nil
		}
		if !lockForce && info.Holder != lock.Identity() {
			return fmt.Errorf("lock is held by %s, not %s; re-run with --force to remove it: %w",
				info.Holder, lock.Identity(), lock.ErrAlreadyLocked)
		}
		if err := lock.Clear(lockPath); err != nil {
			return err
		}
		log.Infow("lock cleared", "lock", lockPath, "holder", info.Holder, "purpose", info.Purpose)
		fmt.Printf("Removed lock: %s\n", lockPath)
		return nil
	},
}

func init() {
	lockClearCmd.Flags().BoolVar(&lockForce, "force", false, "Remove the marker even if another user@host wrote it")
	lockCmd.AddCommand(lockShowCmd, lockClearCmd)
	rootCmd.AddCommand(lockCmd)
}
