package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/rs/zerolog"
)

// MetricSiteHealth is the binary health signal: 1 when every check passed,
// 0 otherwise.
const MetricSiteHealth = "SiteHealth"

// CloudWatchAPI is the slice of the CloudWatch client the provider needs.
type CloudWatchAPI interface {
	PutMetricAlarm(ctx context.Context, params *cloudwatch.PutMetricAlarmInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricAlarmOutput, error)
	PutDashboard(ctx context.Context, params *cloudwatch.PutDashboardInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutDashboardOutput, error)
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Provider pushes alarm definitions, the dashboard, and health data points
// to CloudWatch. All puts are idempotent upserts, so setup can be re-run
// freely.
type Provider struct {
	api       CloudWatchAPI
	logger    zerolog.Logger
	namespace string
	region    string
}

// NewProvider creates a Provider publishing custom metrics under namespace.
func NewProvider(api CloudWatchAPI, logger zerolog.Logger, namespace, region string) *Provider {
	return &Provider{
		api:       api,
		logger:    logger.With().Str("component", "cloudwatch").Logger(),
		namespace: namespace,
		region:    region,
	}
}

// NewCloudWatchClient builds a CloudWatch client from the ambient AWS
// configuration.
func NewCloudWatchClient(ctx context.Context, region string) (*cloudwatch.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return cloudwatch.NewFromConfig(cfg), nil
}

// EnsureAlarms upserts the alarm set for the instance: sustained high CPU,
// failed EC2 status checks, and the site health signal dropping (or going
// missing, which means the watcher itself died).
func (p *Provider) EnsureAlarms(ctx context.Context, tag, instanceID string, alarmActions []string) error {
	instanceDim := []cwtypes.Dimension{{Name: aws.String("InstanceId"), Value: aws.String(instanceID)}}
	hostDim := []cwtypes.Dimension{{Name: aws.String("HostTag"), Value: aws.String(tag)}}

	alarms := []cloudwatch.PutMetricAlarmInput{
		{
			AlarmName:          aws.String(tag + "-high-cpu"),
			AlarmDescription:   aws.String("CPU above 80% for 10 minutes on " + tag),
			Namespace:          aws.String("AWS/EC2"),
			MetricName:         aws.String("CPUUtilization"),
			Statistic:          cwtypes.StatisticAverage,
			Period:             aws.Int32(300),
			EvaluationPeriods:  aws.Int32(2),
			Threshold:          aws.Float64(80),
			ComparisonOperator: cwtypes.ComparisonOperatorGreaterThanThreshold,
			Dimensions:         instanceDim,
		},
		{
			AlarmName:          aws.String(tag + "-status-check-failed"),
			AlarmDescription:   aws.String("EC2 status check failing on " + tag),
			Namespace:          aws.String("AWS/EC2"),
			MetricName:         aws.String("StatusCheckFailed"),
			Statistic:          cwtypes.StatisticMaximum,
			Period:             aws.Int32(60),
			EvaluationPeriods:  aws.Int32(2),
			Threshold:          aws.Float64(1),
			ComparisonOperator: cwtypes.ComparisonOperatorGreaterThanOrEqualToThreshold,
			Dimensions:         instanceDim,
		},
		{
			AlarmName:          aws.String(tag + "-site-unhealthy"),
			AlarmDescription:   aws.String("Site health signal below 1 on " + tag),
			Namespace:          aws.String(p.namespace),
			MetricName:         aws.String(MetricSiteHealth),
			Statistic:          cwtypes.StatisticMinimum,
			Period:             aws.Int32(60),
			EvaluationPeriods:  aws.Int32(3),
			Threshold:          aws.Float64(1),
			ComparisonOperator: cwtypes.ComparisonOperatorLessThanThreshold,
			Dimensions:         hostDim,
			TreatMissingData:   aws.String("breaching"),
		},
	}

	for i := range alarms {
		alarms[i].AlarmActions = alarmActions
		if _, err := p.api.PutMetricAlarm(ctx, &alarms[i]); err != nil {
			return fmt.Errorf("put alarm %s: %w", aws.ToString(alarms[i].AlarmName), err)
		}
		p.logger.Info().Str("alarm", aws.ToString(alarms[i].AlarmName)).Msg("alarm ensured")
	}
	return nil
}

// PutDashboard upserts the per-host dashboard: a header, the EC2 instance
// metrics, and the site health signal.
func (p *Provider) PutDashboard(ctx context.Context, tag, instanceID string) error {
	body, err := json.Marshal(dashboardBody(tag, instanceID, p.namespace, p.region))
	if err != nil {
		return fmt.Errorf("marshal dashboard body: %w", err)
	}

	name := tag + "-site"
	if _, err := p.api.PutDashboard(ctx, &cloudwatch.PutDashboardInput{
		DashboardName: aws.String(name),
		DashboardBody: aws.String(string(body)),
	}); err != nil {
		return fmt.Errorf("put dashboard %s: %w", name, err)
	}

	p.logger.Info().Str("dashboard", name).Msg("dashboard ensured")
	return nil
}

// PublishHealth emits one SiteHealth data point for the host.
func (p *Provider) PublishHealth(ctx context.Context, tag string, healthy bool) error {
	value := 0.0
	if healthy {
		value = 1.0
	}

	_, err := p.api.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []cwtypes.MetricDatum{{
			MetricName: aws.String(MetricSiteHealth),
			Dimensions: []cwtypes.Dimension{{Name: aws.String("HostTag"), Value: aws.String(tag)}},
			Timestamp:  aws.Time(time.Now().UTC()),
			Value:      aws.Float64(value),
			Unit:       cwtypes.StandardUnitCount,
		}},
	})
	if err != nil {
		return fmt.Errorf("put %s metric for %s: %w", MetricSiteHealth, tag, err)
	}
	return nil
}
