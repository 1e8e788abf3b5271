package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/security"
	"github.com/spf13/cobra"
)

var inspectTokenCmd = &cobra.Command{
	Use:   "inspect-token <jwt>",
	Short: "Show whether a credential is expired and whose it is",
	Long: `Decode a bearer credential without verifying its signature and report
what the console would decide: expired or not, the embedded user id and the
expiry time. Undecodable tokens and tokens without an expiry are expired.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspectToken,
}

var inspectTokenJSON bool

func init() {
	rootCmd.AddCommand(inspectTokenCmd)

	inspectTokenCmd.Flags().BoolVar(&inspectTokenJSON, "json", false, "print the verdict as JSON")
}

type tokenVerdict struct {
	Expired   bool       `json:"expired"`
	UserID    int64      `json:"userId,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Error     string     `json:"error,omitempty"`
}

func inspectToken(token string, now time.Time) tokenVerdict {
	verdict := tokenVerdict{Expired: security.IsExpiredAt(token, now)}
	if exp, ok := security.ExpiresAt(token); ok {
		verdict.ExpiresAt = &exp
	}
	userID, err := security.UserIDFromToken(token)
	if err != nil {
		verdict.Error = err.Error()
	} else {
		verdict.UserID = userID
	}
	return verdict
}

func runInspectToken(cmd *cobra.Command, args []string) error {
	verdict := inspectToken(args[0], time.Now())
	out := cmd.OutOrStdout()

	if inspectTokenJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(verdict)
	}

	status := "valid"
	if verdict.Expired {
		status = "expired"
	}
	fmt.Fprintf(out, "status:  %s\n", status)
	if verdict.UserID != 0 {
		fmt.Fprintf(out, "user id: %d\n", verdict.UserID)
	}
	if verdict.ExpiresAt != nil {
		fmt.Fprintf(out, "expires: %s\n", verdict.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if verdict.Error != "" {
		fmt.Fprintf(out, "error:   %s\n", verdict.Error)
	}
	return nil
}
