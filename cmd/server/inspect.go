package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brandon/mailcore/pkg/types"
)

var (
	foldersCreateMissing bool

	messagesOffset  int
	messagesLimit   int
	messagesSearch  string
	messagesFilters []string
	messagesThreads bool
)

var foldersCmd = &cobra.Command{
	Use:   "folders <email|account-name>",
	Short: "Print the folder tree of an account as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		acc, err := a.account(cmd, args[0])
		if err != nil {
			return err
		}
		coll, err := a.manager.ListFolders(cmd.Context(), acc, foldersCreateMissing)
		if err != nil {
			return err
		}
		return printJSON(coll)
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <email|account-name> <folder>",
	Short: "Print one page of a folder as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		acc, err := a.account(cmd, args[0])
		if err != nil {
			return err
		}
		list, err := a.manager.ListMessages(cmd.Context(), acc, types.MessageListRequest{
			Folder:     args[1],
			Offset:     messagesOffset,
			Limit:      messagesLimit,
			Search:     messagesSearch,
			Filters:    messagesFilters,
			UseThreads: messagesThreads,
		})
		if err != nil {
			return err
		}
		return printJSON(list)
	},
}

func init() {
	foldersCmd.Flags().BoolVar(&foldersCreateMissing, "create-missing", false, "Create missing system folders")

	messagesCmd.Flags().IntVar(&messagesOffset, "offset", 0, "Entries to skip")
	messagesCmd.Flags().IntVar(&messagesLimit, "limit", 20, "Page size")
	messagesCmd.Flags().StringVarP(&messagesSearch, "search", "s", "", "Search query")
	messagesCmd.Flags().StringSliceVar(&messagesFilters, "filter", nil, "Filters: flagged, unseen")
	messagesCmd.Flags().BoolVar(&messagesThreads, "threads", false, "Group conversations")
}

// account accepts an address or the name of a configured account.
func (a *app) account(cmd *cobra.Command, ref string) (*types.Account, error) {
	if !strings.Contains(ref, "@") {
		accCfg, err := a.cfg.GetAccountByName(ref)
		if err != nil {
			return nil, err
		}
		ref = accCfg.Account().Email
	}
	return a.manager.Account(cmd.Context(), ref)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
