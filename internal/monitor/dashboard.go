package monitor

// CloudWatch dashboard bodies are JSON documents with an ordered widget
// list. Built as structs and marshaled, never templated as strings.

type dashboard struct {
	Widgets []widget `json:"widgets"`
}

type widget struct {
	Type       string           `json:"type"`
	X          int              `json:"x"`
	Y          int              `json:"y"`
	Width      int              `json:"width"`
	Height     int              `json:"height"`
	Properties widgetProperties `json:"properties"`
}

type widgetProperties struct {
	Markdown string  `json:"markdown,omitempty"`
	Metrics  [][]any `json:"metrics,omitempty"`
	Period   int     `json:"period,omitempty"`
	Stat     string  `json:"stat,omitempty"`
	Region   string  `json:"region,omitempty"`
	Title    string  `json:"title,omitempty"`
	View     string  `json:"view,omitempty"`
}

func dashboardBody(tag, instanceID, namespace, region string) dashboard {
	return dashboard{
		Widgets: []widget{
			{
				Type: "text", X: 0, Y: 0, Width: 24, Height: 2,
				Properties: widgetProperties{
					Markdown: "# " + tag + " — static site\nDeployments, backups and health for instance `" + instanceID + "`",
				},
			},
			{
				Type: "metric", X: 0, Y: 2, Width: 12, Height: 6,
				Properties: widgetProperties{
					Title:  "CPU utilization",
					View:   "timeSeries",
					Region: region,
					Stat:   "Average",
					Period: 300,
					Metrics: [][]any{
						{"AWS/EC2", "CPUUtilization", "InstanceId", instanceID},
					},
				},
			},
			{
				Type: "metric", X: 12, Y: 2, Width: 12, Height: 6,
				Properties: widgetProperties{
					Title:  "Network traffic",
					View:   "timeSeries",
					Region: region,
					Stat:   "Sum",
					Period: 300,
					Metrics: [][]any{
						{"AWS/EC2", "NetworkIn", "InstanceId", instanceID},
						{"AWS/EC2", "NetworkOut", "InstanceId", instanceID},
					},
				},
			},
			{
				Type: "metric", X: 0, Y: 8, Width: 12, Height: 6,
				Properties: widgetProperties{
					Title:  "Status checks",
					View:   "timeSeries",
					Region: region,
					Stat:   "Maximum",
					Period: 60,
					Metrics: [][]any{
						{"AWS/EC2", "StatusCheckFailed", "InstanceId", instanceID},
					},
				},
			},
			{
				Type: "metric", X: 12, Y: 8, Width: 12, Height: 6,
				Properties: widgetProperties{
					Title:  "Site health",
					View:   "timeSeries",
					Region: region,
					Stat:   "Minimum",
					Period: 60,
					Metrics: [][]any{
						{namespace, MetricSiteHealth, "HostTag", tag},
					},
				},
			},
		},
	}
}
