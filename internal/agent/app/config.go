package app

type Config struct {
	DataDir  string
	DBDriver string
	File     string
	Follow   bool
	Verbose  bool
}
