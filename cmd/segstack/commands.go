// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath  string
	plainOutput bool

	// restart flags
	cleanVolumes bool
	skipSAM      bool
	skipWire     bool
	skipBuckets  bool
	rebuildSAM   bool

	rootCmd = &cobra.Command{
		Use:   "segstack",
		Short: "A cli to manage the SegStack local segmentation stack",
		Long: `SegStack runs the image segmentation pipeline entirely on your
				machine: a LocalStack storage emulator, a SageMaker inference
				container, and the processing functions under sam local.`,
	}

	restartCmd = &cobra.Command{
		Use:   "restart",
		Short: "Tear down and bring up the full local stack",
		Run:   runRestart, // Defined in cmd_restart.go
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the state of the stack services and function runtime",
		Run:   runStatus, // Defined in cmd_status.go
	}

	uploadCmd = &cobra.Command{
		Use:   "upload [image path]",
		Short: "Upload an image and wait for the segmentation result",
		Args:  cobra.ExactArgs(1),
		Run:   runUpload, // Defined in cmd_upload.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to segstack.yaml (default: ./segstack.yaml, missing file uses defaults)")
	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false,
		"Plain machine-greppable output (no colors or icons)")

	rootCmd.AddCommand(restartCmd)
	restartCmd.Flags().BoolVar(&cleanVolumes, "clean-volumes", false,
		"Also remove the stack's volumes, wiping all emulated storage state")
	restartCmd.Flags().BoolVar(&skipSAM, "skip-sam", false,
		"Leave the function runtime alone (no stop, build, start, or gate)")
	restartCmd.Flags().BoolVar(&skipWire, "skip-wire", false,
		"Skip bucket event subscription wiring")
	restartCmd.Flags().BoolVar(&skipBuckets, "skip-buckets", false,
		"Skip bucket provisioning")
	restartCmd.Flags().BoolVar(&rebuildSAM, "rebuild-sam", false,
		"Run sam build before starting the function runtime")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(uploadCmd)
}
