// internal/common/aws/clients.go
package aws

import (
	"context"
	"fmt"

	"loan-workflow/internal/common/config"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Clients holds the AWS service clients used for applicant notifications.
// A client is nil when its channel is disabled in config.
type Clients struct {
	SES *ses.Client
	SNS *sns.Client
}

// NewClients resolves credentials from the default chain once and builds the
// enabled clients.
func NewClients(ctx context.Context, cfg config.AWSConfig) (*Clients, error) {
	clients := &Clients{}
	if !cfg.SES.Enabled && !cfg.SNS.Enabled {
		return clients, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	if cfg.SES.Enabled {
		clients.SES = ses.NewFromConfig(awsCfg)
	}
	if cfg.SNS.Enabled {
		clients.SNS = sns.NewFromConfig(awsCfg)
	}
	return clients, nil
}
