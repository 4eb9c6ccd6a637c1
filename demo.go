package main

type demoSong struct {
	Melody string
	Tempo  int
}

var demoSongs = []demoSong{
	{"G,E,E,D,E,G,G,R,A,A,C2,A,A,G,G,R,G,E,E,D,E,G,G,R,A,A,G,C,E,D,C,R,R", 84},
	{"G,E,D,C,D,E,G,E,D,C,D,E,G,E,G,A,E,A,G,E,D,C,R,R", 120},
	{"C+E,R,F+D,F+D,R,E+C,E+C,D,F+D,F+D,R,E+C,E+C,D,F+D,F+D,R,E+C,E+C,R,R,R,E+G,R,F+A,F+A,R,B+G,B+G,R,C2+A,C2+A,R,B+G,B+G,R,A+F,A+F,R,G+E,C+E+G+C2,R,R,R", 150},
}
