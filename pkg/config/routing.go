package config

import "relaybot/pkg/relay"

// Router builds the category router for the staff group and the
// configured categories.
func (c *Config) Router() relay.StaticRouter {
	r := relay.StaticRouter{Default: c.Telegram.StaffGroupID}
	if len(c.Routing.Categories) == 0 {
		return r
	}
	r.Categories = make(map[int]relay.Target, len(c.Routing.Categories))
	for n, cc := range c.Routing.Categories {
		r.Categories[n] = relay.Target{ChatID: cc.ChatID, TopicID: cc.TopicID, Label: cc.Label}
	}
	return r
}
