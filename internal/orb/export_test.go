package orb

var WithClock = withClock
