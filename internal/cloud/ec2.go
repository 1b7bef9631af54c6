package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"

	"github.com/edvin/webdeploy/internal/model"
)

// DescribeInstancesAPI is the slice of the EC2 client the resolver needs.
type DescribeInstancesAPI interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// Resolver maps a stable Name tag to a concrete instance address. Every
// operation resolves fresh; addresses change across stop/start cycles and a
// cached one would point a deploy at the wrong machine.
type Resolver struct {
	api    DescribeInstancesAPI
	logger zerolog.Logger
}

// NewResolver creates a Resolver over an EC2 API client.
func NewResolver(api DescribeInstancesAPI, logger zerolog.Logger) *Resolver {
	return &Resolver{
		api:    api,
		logger: logger.With().Str("component", "host-resolver").Logger(),
	}
}

// NewEC2Client builds an EC2 client from the ambient AWS configuration
// (environment, shared config, instance role).
func NewEC2Client(ctx context.Context, region string) (*ec2.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return ec2.NewFromConfig(cfg), nil
}

// Resolve finds the single running instance carrying the Name tag and
// returns its identity and address. The public IP is preferred; instances
// without one (private subnets reached over VPN) fall back to the private
// IP. Zero or multiple matching instances are both errors: this tool
// manages exactly one host per tag.
func (r *Resolver) Resolve(ctx context.Context, tag string) (model.Host, error) {
	out, err := r.api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag:Name"), Values: []string{tag}},
			{Name: aws.String("instance-state-name"), Values: []string{string(ec2types.InstanceStateNameRunning)}},
		},
	})
	if err != nil {
		return model.Host{}, fmt.Errorf("describe instances for tag %q: %w", tag, err)
	}

	var instances []ec2types.Instance
	for _, res := range out.Reservations {
		instances = append(instances, res.Instances...)
	}
	if len(instances) == 0 {
		return model.Host{}, fmt.Errorf("no running instance with tag Name=%q", tag)
	}
	if len(instances) > 1 {
		return model.Host{}, fmt.Errorf("%d running instances with tag Name=%q, expected exactly one", len(instances), tag)
	}

	inst := instances[0]
	host := model.Host{
		Tag:        tag,
		InstanceID: aws.ToString(inst.InstanceId),
		Address:    aws.ToString(inst.PublicIpAddress),
		State:      string(inst.State.Name),
	}
	if host.Address == "" {
		host.Address = aws.ToString(inst.PrivateIpAddress)
	}
	if host.Address == "" {
		return model.Host{}, fmt.Errorf("instance %s has no usable IP address", host.InstanceID)
	}

	r.logger.Debug().Str("tag", tag).Str("instance_id", host.InstanceID).Str("address", host.Address).Msg("resolved host")
	return host, nil
}
