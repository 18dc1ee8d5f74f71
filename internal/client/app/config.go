package app

type Config struct {
	Server  string
	IP      string
	Country string
	Host    string
	Since   string
	Limit   int
	Stats   bool
	Detail  string
}
