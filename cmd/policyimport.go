package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"policy-reasoner/api/pkg/config"
	"policy-reasoner/api/services/policystore"
)

var (
	policyImportFile            string
	policyImportDescription     string
	policyImportReasoner        string
	policyImportReasonerVersion string
	policyImportInitiator       string
	policyImportActivate        bool
)

var policyImportCmd = &cobra.Command{
	Use:   "policy-import",
	Short: "Add a policy version directly to the store, bypassing the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := os.ReadFile(policyImportFile)
		if err != nil {
			return fmt.Errorf("read %s: %w", policyImportFile, err)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}

		actx := policystore.Context{Initiator: policyImportInitiator}
		content := policystore.Content{
			ReasonerID:      policyImportReasoner,
			ReasonerVersion: policyImportReasonerVersion,
			Body:            body,
		}

		policy, err := store.AddVersion(ctx, policyImportDescription, content, actx, func(policystore.Policy) error { return nil })
		if err != nil {
			return fmt.Errorf("add policy version: %w", err)
		}
		fmt.Printf("imported policy version %d\n", policy.Version)

		if policyImportActivate {
			policy, err = store.SetActive(ctx, policy.Version, actx, func(policystore.Policy) error { return nil })
			if err != nil {
				return fmt.Errorf("activate policy version: %w", err)
			}
			fmt.Printf("activated policy version %d\n", policy.Version)
		}
		return nil
	},
}

func init() {
	policyImportCmd.Flags().StringVar(&policyImportFile, "file", "", "path to the policy body to import (required)")
	policyImportCmd.Flags().StringVar(&policyImportDescription, "description", "", "description for the new version")
	policyImportCmd.Flags().StringVar(&policyImportReasoner, "reasoner", "eflint-json", "reasoner identifier the body targets")
	policyImportCmd.Flags().StringVar(&policyImportReasonerVersion, "reasoner-version", "", "reasoner version the body targets")
	policyImportCmd.Flags().StringVar(&policyImportInitiator, "initiator", "cli", "initiator recorded against this write")
	policyImportCmd.Flags().BoolVar(&policyImportActivate, "activate", false, "also activate the imported version")
	_ = policyImportCmd.MarkFlagRequired("file")
}
