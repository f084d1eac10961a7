package cfg

type MockLoader struct{}

func NewMockLoader() (*MockLoader, error) {
	return &MockLoader{}, nil
}

func (yl *MockLoader) Load() (*Config, error) {
	return &Config{
		// App
		App: App{
			Name:    "github-metrics",
			Version: "0.0.1",
		},

		// Mysql
		Mysql: Mysql{
			Host:                  "127.0.0.1",
			Password:              "root",
			Username:              "root",
			Port:                  "3306",
			Database:              "github_metrics",
			MaxIdleConnection:     10,
			MaxOpenConnection:     100,
			MaxLifeTimeConnection: 3600,
		},

		// GithubApi
		GithubApi: GithubApi{
			AccessToken:       "",
			ApiUrl:            "https://api.github.com",
			PageSize:          100,
			RequestsPerSecond: 5,
			ThrottleDelay:     200,
			RateLimitResetMin: 5,
		},

		// Kafka
		Kafka: Kafka{
			Enabled:   false,
			Brokers:   []string{"127.0.0.1:9092"},
			TopicStat: "repo-stats",
		},

		// Collector
		Collector: Collector{
			FilterRules:    "",
			StarPageBudget: 1000,
		},
	}, nil
}
