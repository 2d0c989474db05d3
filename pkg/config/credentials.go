package config

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"golang.org/x/term"
)

// AWSCredentials holds the destination-side S3 credentials. They are passed
// explicitly through client construction so a mid-run refresh never has to
// mutate process state shared with in-flight workers.
type AWSCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string // short-lived STS token, the part that expires
	Region          string
}

// SwiftCredentials holds Keystone v3 application-credential auth for the
// source container.
type SwiftCredentials struct {
	AuthURL                     string
	ApplicationCredentialID     string
	ApplicationCredentialSecret string
	Region                      string
}

// LoadAWSCredentials reads destination credentials from the environment,
// falling back to the SDK default chain when none are set.
func LoadAWSCredentials(region string) AWSCredentials {
	return AWSCredentials{
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Region:          region,
	}
}

// LoadSwiftCredentials reads source credentials from the environment using
// the standard OpenStack variable names.
func LoadSwiftCredentials(region string) (SwiftCredentials, error) {
	creds := SwiftCredentials{
		AuthURL:                     os.Getenv("OS_AUTH_URL"),
		ApplicationCredentialID:     os.Getenv("OS_APPLICATION_CREDENTIAL_ID"),
		ApplicationCredentialSecret: os.Getenv("OS_APPLICATION_CREDENTIAL_SECRET"),
		Region:                      region,
	}

	if creds.AuthURL == "" {
		return SwiftCredentials{}, fmt.Errorf("OS_AUTH_URL is not set")
	}

	if creds.ApplicationCredentialID == "" || creds.ApplicationCredentialSecret == "" {
		return SwiftCredentials{}, fmt.Errorf("OS_APPLICATION_CREDENTIAL_ID and OS_APPLICATION_CREDENTIAL_SECRET must be set")
	}

	return creds, nil
}

// AWSConfig builds an aws.Config from explicit credentials. When no access
// key is present the SDK default chain (credentials file, IAM role) is used.
func AWSConfig(ctx context.Context, creds AWSCredentials) (aws.Config, error) {
	region := creds.Region
	if region == "" {
		region = "us-east-1"
	}

	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return aws.Config{}, fmt.Errorf("failed to load default credentials: %w", err)
		}
		return cfg, nil
	}

	provider := credentials.NewStaticCredentialsProvider(
		creds.AccessKeyID,
		creds.SecretAccessKey,
		creds.SessionToken,
	)

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(provider),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load credentials: %w", err)
	}

	return cfg, nil
}

// CredentialSource produces fresh destination credentials when the current
// session token expires mid-run. The coordinator calls Refresh exactly once
// per expiry, no matter how many workers hit the expired token.
type CredentialSource interface {
	Refresh(ctx context.Context) (AWSCredentials, error)
}

// PromptCredentialSource solicits replacement credentials interactively.
// Secrets are read with terminal echo disabled when stdin is a terminal.
type PromptCredentialSource struct {
	Region string
	In     io.Reader // defaults to os.Stdin
	Out    io.Writer // defaults to os.Stderr

	reader *bufio.Reader
}

// Refresh prompts for a new access key, secret key and session token.
func (p *PromptCredentialSource) Refresh(_ context.Context) (AWSCredentials, error) {
	in := p.In
	if in == nil {
		in = os.Stdin
	}

	out := p.Out
	if out == nil {
		out = os.Stderr
	}

	accessKey, err := p.readLine(in, out, "Enter AWS Access Key ID: ")
	if err != nil {
		return AWSCredentials{}, err
	}

	secretKey, err := p.readSecret(in, out, "Enter AWS Secret Access Key: ")
	if err != nil {
		return AWSCredentials{}, err
	}

	sessionToken, err := p.readSecret(in, out, "Enter AWS Session Token: ")
	if err != nil {
		return AWSCredentials{}, err
	}

	return AWSCredentials{
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		SessionToken:    sessionToken,
		Region:          p.Region,
	}, nil
}

func (p *PromptCredentialSource) readLine(in io.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)

	if p.reader == nil {
		p.reader = bufio.NewReader(in)
	}

	line, err := p.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read credential input: %w", err)
	}

	return strings.TrimSpace(line), nil
}

func (p *PromptCredentialSource) readSecret(in io.Reader, out io.Writer, prompt string) (string, error) {
	// Only suppress echo when reading from a real terminal; tests and piped
	// input go through the plain line reader.
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, prompt)

		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read secret input: %w", err)
		}

		return strings.TrimSpace(string(secret)), nil
	}

	return p.readLine(in, out, prompt)
}
