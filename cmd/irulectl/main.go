// Command irulectl reconciles a single iRule onto a BIG-IP in one shot:
// compare the desired rule against the device and create, update, or delete
// as needed. Connection settings come from the environment (BIGIP_HOST,
// BIGIP_USERNAME, BIGIP_PASSWORD), the rule itself from flags.
//
//	irulectl -module ltm -name my_rule -src rule.tcl
//	irulectl -module gtm -name my_rule -state absent
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/mhodges/bigip-rule-manager/internal/bigip"
	"github.com/mhodges/bigip-rule-manager/internal/config"
	"github.com/mhodges/bigip-rule-manager/internal/domain"
	"github.com/mhodges/bigip-rule-manager/internal/reconcile"
)

func main() {
	var (
		name      = flag.String("name", "", "name of the iRule (required)")
		module    = flag.String("module", "", "target module: ltm or gtm (required)")
		state     = flag.String("state", "present", "desired state: present or absent")
		partition = flag.String("partition", domain.DefaultPartition, "device partition")
		content   = flag.String("content", "", "iRule content (mutually exclusive with -src)")
		src       = flag.String("src", "", "path to a file with the iRule content")
		dryRun    = flag.Bool("dry-run", false, "report the change without applying it")
		jsonOut   = flag.Bool("json", false, "print the result as JSON")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	var client bigip.DeviceClient
	if cfg.UseFileShim() {
		client = bigip.NewFileShim(cfg.BigIP.FileShim)
	} else {
		c, err := bigip.New(bigip.Options{
			Host:          cfg.BigIP.Host,
			Username:      cfg.BigIP.Username,
			Password:      cfg.BigIP.Password,
			LoginProvider: cfg.BigIP.LoginProvider,
			SkipVerify:    cfg.BigIP.SkipVerify,
			Timeout:       cfg.BigIP.Timeout,
		})
		if err != nil {
			fatal(err)
		}
		if cfg.BigIP.SkipVerify {
			log.Printf("Warning: TLS certificate verification is disabled")
		}
		client = c
	}

	spec := domain.RuleSpec{
		Name:      *name,
		Module:    domain.TrafficModule(*module),
		Partition: *partition,
		Content:   *content,
		Src:       *src,
		State:     domain.DesiredState(*state),
	}

	ctx := context.Background()
	if err := client.Login(ctx); err != nil {
		fatal(err)
	}
	defer client.Logout(ctx)

	result, err := reconcile.New(client).Apply(ctx, spec, *dryRun)
	if err != nil {
		fatal(err)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fatal(err)
		}
		return
	}

	if result.Changed {
		verb := result.Action
		if result.DryRun {
			verb = "would " + verb
		}
		fmt.Printf("%s iRule /%s/%s (%s)\n", verb, result.Partition, result.Name, result.Module)
	} else {
		fmt.Printf("iRule /%s/%s (%s) already in desired state\n", result.Partition, result.Name, result.Module)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "irulectl: %v\n", err)
	os.Exit(1)
}
