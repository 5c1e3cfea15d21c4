package adapter

import "time"

// DefaultAPIURL is the Bale Bot API endpoint. It speaks the Telegram Bot API,
// so pointing APIURL at https://api.telegram.org works unchanged.
const DefaultAPIURL = "https://tapi.bale.ai"

type Config struct {
	Token       string
	APIURL      string
	PollTimeout time.Duration
}
