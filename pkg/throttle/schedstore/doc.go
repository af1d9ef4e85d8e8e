/*
Package schedstore provides schedule stores for resolving the transaction a
ScheduleSign refers to.

Memory keeps schedules in process. Redis shares them between processes:

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	store, err := schedstore.NewRedis(schedstore.RedisConfig{
		Redis:     rdb,
		KeyPrefix: "throttle:schedules",
	})
	if err != nil {
		log.Fatal(err)
	}
	t, err := throttle.New(throttle.HAPI, props, throttle.WithScheduleStore(store))

A lookup that fails for any reason makes the ScheduleSign inadmissible, so
a Redis outage throttles schedule signatures rather than admitting them
without their inner charge.
*/
package schedstore
