package cfg

type (
	App struct {
		Name    string
		Version string
	}

	Mysql struct {
		Host                  string
		Port                  string
		Username              string
		Password              string
		Database              string
		MaxIdleConnection     int
		MaxOpenConnection     int
		MaxLifeTimeConnection int
	}

	GithubApi struct {
		AccessToken       string
		ApiUrl            string
		PageSize          int
		RequestsPerSecond int
		ThrottleDelay     int
		RateLimitResetMin int
	}

	Kafka struct {
		Enabled   bool
		Brokers   []string
		TopicStat string
	}

	Collector struct {
		FilterRules    string
		StarPageBudget int
	}
)

type Config struct {
	App       App
	Mysql     Mysql
	GithubApi GithubApi
	Kafka     Kafka
	Collector Collector
}
