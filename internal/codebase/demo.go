package codebase

import (
	"os"
	"path/filepath"
	"sort"
)

// DemoProject is the project name used when no codebase argument is given.
const DemoProject = "grokbox-demo"

// demoFiles is the synthetic codebase generated for demo instances: a small
// multi-language tree with enough real code to make search results
// interesting. Contents are fixed so two generations are byte-identical.
var demoFiles = map[string]string{
	"README.md": `# grokbox demo project

A small multi-language codebase used to exercise source indexing and
search. Generated by grokbox when an instance is started without a
codebase argument.

## Layout

- main.go: entry point, prints greetings
- greet/: greeting helpers
- csrc/: a fixed-capacity stack in C
- scripts/: analysis helpers in Python

Try searching for "stack_push" or "Shout" once the instance is ready.
`,

	"go.mod": `module example.com/grokbox-demo

go 1.21
`,

	"main.go": `package main

import (
	"fmt"
	"os"

	"example.com/grokbox-demo/greet"
)

func main() {
	name := "world"
	if len(os.Args) > 1 {
		name = os.Args[1]
	}
	fmt.Println(greet.Hello(name))
	fmt.Println(greet.Shout(name))
}
`,

	"greet/greet.go": `// Package greet builds greeting strings in a few styles.
package greet

import "strings"

// Hello returns a plain greeting.
func Hello(name string) string {
	return "hello, " + name
}

// Shout returns an upper-case greeting with emphasis.
func Shout(name string) string {
	return strings.ToUpper("hello, "+name) + "!"
}
`,

	"csrc/stack.c": `/* A fixed-capacity integer stack. */
#include <stdio.h>

#define STACK_CAP 64

static int items[STACK_CAP];
static int top = 0;

int stack_push(int value) {
    if (top == STACK_CAP) {
        return -1;
    }
    items[top++] = value;
    return 0;
}

int stack_pop(int *value) {
    if (top == 0) {
        return -1;
    }
    *value = items[--top];
    return 0;
}

int main(void) {
    stack_push(1);
    stack_push(2);
    stack_push(3);

    int v;
    while (stack_pop(&v) == 0) {
        printf("%d\n", v);
    }
    return 0;
}
`,

	"scripts/wordfreq.py": `#!/usr/bin/env python3
"""Print the most common words in the files given on the command line."""

import collections
import re
import sys


def count_words(text):
    words = re.findall(r"[a-z']+", text.lower())
    return collections.Counter(words)


def main(paths):
    counts = collections.Counter()
    for path in paths:
        with open(path, encoding="utf-8") as fh:
            counts.update(count_words(fh.read()))
    for word, n in counts.most_common(10):
        print(f"{n:6d}  {word}")


if __name__ == "__main__":
    main(sys.argv[1:])
`,

	"Makefile": `all: demo stack

demo:
	go build -o demo .

stack: csrc/stack.c
	cc -Wall -o stack csrc/stack.c

test:
	go test ./...

clean:
	rm -f demo stack

.PHONY: all demo test clean
`,
}

// writeDemoTree writes the demo codebase under dir, creating parent
// directories as needed.
func writeDemoTree(dir string) error {
	paths := make([]string, 0, len(demoFiles))
	for p := range demoFiles {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		target := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(target, []byte(demoFiles[p]), 0644); err != nil {
			return err
		}
	}
	return nil
}
