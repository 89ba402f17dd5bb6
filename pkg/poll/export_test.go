package poll

var WithSleep = withSleep
