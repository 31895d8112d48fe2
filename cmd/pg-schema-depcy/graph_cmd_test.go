package main

const graphSchemaYAML = `
schemas:
  - name: public
    tables:
      - name: t1
        columns:
          - name: id
            type: int
    views:
      - name: v1
        query: SELECT id FROM t1
        depends_on: ["COLUMN public.t1.id"]
`

func (suite *cmdTestSuite) TestGraphCmd() {
	for _, tc := range []struct {
		name        string
		args        []string
		dynamicArgs []dArgGenerator

		outputContains    []string
		expectErrContains []string
	}{
		{
			name:        "columns",
			dynamicArgs: []dArgGenerator{tempSchemaFileDArg("schema", graphSchemaYAML)},
			outputContains: []string{
				"digraph G {",
				`label="COLUMN public.t1.id"`,
				`label="VIEW public.v1"`,
				" -> ",
			},
		},
		{
			name:           "reduced columns",
			args:           []string{"--reduce-columns"},
			dynamicArgs:    []dArgGenerator{tempSchemaFileDArg("schema", graphSchemaYAML)},
			outputContains: []string{`label="TABLE public.t1"`, `label="VIEW public.v1"`},
		},
		{
			name:        "creation order",
			args:        []string{"--creation-order"},
			dynamicArgs: []dArgGenerator{tempSchemaFileDArg("schema", graphSchemaYAML)},
			outputContains: []string{
				"DATABASE\nSCHEMA public\nTABLE public.t1\nCOLUMN public.t1.id\nVIEW public.v1\n",
			},
		},
		{
			name:              "invalid schema",
			dynamicArgs:       []dArgGenerator{tempSchemaFileDArg("schema", "dialect: oracle\n")},
			expectErrContains: []string{"getting schema"},
		},
	} {
		suite.Run(tc.name, func() {
			suite.runCmdWithAssertions(runCmdWithAssertionsParams{
				args:              append([]string{"graph"}, tc.args...),
				dynamicArgs:       tc.dynamicArgs,
				outputContains:    tc.outputContains,
				expectErrContains: tc.expectErrContains,
			})
		})
	}
}

func (suite *cmdTestSuite) TestVersionCmd() {
	suite.runCmdWithAssertions(runCmdWithAssertionsParams{
		args:           []string{"version"},
		outputContains: []string{"version=", "go="},
	})
}
