package mock

//go:generate go run go.uber.org/mock/mockgen -destination skhub.go -package mock github.com/prethora/skhub Decoder,Fetcher,Logger
