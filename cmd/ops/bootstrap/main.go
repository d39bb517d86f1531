// Package main implements the bootstrap CLI for a MatchPass environment.
//
// It collects the ledger's external secrets, generates the internal service
// key, and writes everything to SSM Parameter Store under /{env}/matchpass/
// so the API and workers can resolve them through *_SSM_PARAM pointers.
//
// Usage:
//
//	go run ./cmd/ops/bootstrap --env=dev
//	go run ./cmd/ops/bootstrap --env=prod --profile=matchpass-prod --region=us-east-1
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

var validEnvironments = map[string]bool{
	"dev":     true,
	"staging": true,
	"prod":    true,
}

// Session is the verified AWS identity the bootstrap writes with.
type Session struct {
	Environment string
	AWSProfile  string
	AWSRegion   string
	AccountID   string
	CallerARN   string
	AWSConfig   aws.Config
}

// STSClient is the subset of the STS API used for the identity check.
type STSClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

func main() {
	envFlag := flag.String("env", "", "Target environment (dev/staging/prod) [required]")
	profileFlag := flag.String("profile", "", "AWS CLI profile (default: uses default credential chain)")
	regionFlag := flag.String("region", "us-east-1", "AWS region")
	skipOptional := flag.Bool("skip-optional", false, "Skip optional parameters without prompting")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "MatchPass Bootstrap Tool\n\n")
		fmt.Fprintf(os.Stderr, "Writes ledger secrets and the internal service key to SSM.\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  bootstrap --env=dev [--profile=NAME] [--region=REGION] [--skip-optional]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *envFlag == "" {
		fmt.Fprintf(os.Stderr, "error: --env is required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	if !validEnvironments[*envFlag] {
		fmt.Fprintf(os.Stderr, "error: invalid environment %q (must be dev, staging, or prod)\n", *envFlag)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var opts []func(*awsconfig.LoadOptions) error
	if *regionFlag != "" {
		opts = append(opts, awsconfig.WithRegion(*regionFlag))
	}
	if *profileFlag != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(*profileFlag))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		logger.Error("loading AWS config failed", "error", err)
		os.Exit(1)
	}

	session, err := verifyIdentity(ctx, sts.NewFromConfig(awsCfg), *envFlag, *profileFlag, *regionFlag)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	session.AWSConfig = awsCfg
	logger.Info("AWS identity verified", "account_id", session.AccountID, "arn", session.CallerARN, "region", session.AWSRegion)

	if session.Environment == "prod" && !confirmProduction(os.Stdin, os.Stderr, session) {
		fmt.Fprintln(os.Stderr, "Aborted. No changes were made.")
		os.Exit(0)
	}

	printBanner(os.Stderr, session)

	runner := NewBootstrapRunner(NewSSMManager(ssm.NewFromConfig(awsCfg), session.Environment, logger))
	runner.SkipOptional = *skipOptional
	if _, err := runner.Run(ctx); err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	logger.Info("bootstrap completed successfully", "env", session.Environment, "account", session.AccountID)
}

// verifyIdentity calls STS GetCallerIdentity so bad credentials fail before
// any prompt.
func verifyIdentity(ctx context.Context, client STSClient, env, profile, region string) (*Session, error) {
	identityCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	identity, err := client.GetCallerIdentity(identityCtx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("verifying AWS identity (STS GetCallerIdentity): %w\n"+
			"  Check that your AWS credentials are configured correctly.\n"+
			"  Profile: %q, Region: %q", err, profile, region)
	}

	return &Session{
		Environment: env,
		AWSProfile:  profile,
		AWSRegion:   region,
		AccountID:   aws.ToString(identity.Account),
		CallerARN:   aws.ToString(identity.Arn),
	}, nil
}

// confirmProduction returns true only if the operator types "yes".
func confirmProduction(in io.Reader, out io.Writer, s *Session) bool {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "============================================================")
	fmt.Fprintln(out, "  WARNING: You are targeting the PRODUCTION environment")
	fmt.Fprintln(out, "============================================================")
	fmt.Fprintf(out, "  Account: %s\n", s.AccountID)
	fmt.Fprintf(out, "  Region:  %s\n", s.AWSRegion)
	fmt.Fprintf(out, "  ARN:     %s\n", s.CallerARN)
	fmt.Fprintln(out, "============================================================")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Type 'yes' to continue: ")

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(scanner.Text()), "yes")
}

func printBanner(out io.Writer, s *Session) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "------------------------------------------------------------")
	fmt.Fprintln(out, "  MatchPass Bootstrap")
	fmt.Fprintln(out, "------------------------------------------------------------")
	fmt.Fprintf(out, "  Environment:  %s\n", s.Environment)
	fmt.Fprintf(out, "  AWS Account:  %s\n", s.AccountID)
	fmt.Fprintf(out, "  AWS Region:   %s\n", s.AWSRegion)
	fmt.Fprintf(out, "  Identity:     %s\n", s.CallerARN)
	if s.AWSProfile != "" {
		fmt.Fprintf(out, "  Profile:      %s\n", s.AWSProfile)
	}
	fmt.Fprintf(out, "  SSM Prefix:   /%s/matchpass/\n", s.Environment)
	fmt.Fprintln(out, "------------------------------------------------------------")
	fmt.Fprintln(out)
}
