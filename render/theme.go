package render

// DefaultTheme is the stylesheet embedded in SVG output.
const DefaultTheme = `* { stroke-width: 1; }
svg { background: #ffffff; }
text { font-family: Arial, Helvetica, sans-serif; font-size: 12px; font-weight: normal; stroke: none; }
.shape { fill: #ffffff; stroke: #555555; stroke-width: 1.5; }
.cls, .dataRange { fill: #f8c291; }
.individual { fill: #f4d35e; }
.property, .objectProperty, .datatypeProperty, .annotationProperty, .ontologyProperty { fill: #9ad0ec; }
.concept, .conceptScheme { fill: #b9e4c9; }
.skosCollection, .skosOrderedCollection { fill: #cdebd7; }
.ontology { fill: #e2c2f0; }
.xLabel, .limeLexicon, .ontolexLexicalEntry, .ontolexForm, .ontolexLexicalSense, .decompComponent { fill: #eeeeee; }
.mixed, .undetermined { fill: #dddddd; }
.label { fill: none; stroke: none; }
.uml { fill: #fff8e7; }
.root { stroke: #d1495b; stroke-width: 2.5; }
.link { fill: none; stroke: #8a8a8a; stroke-width: 1.2; }
.class-axiom { stroke: #8e6bbf; }
.subclass { stroke: #444444; }
.uml-separator { stroke: #555555; }
.marker { fill: #8a8a8a; stroke: none; }
.marker-hollow { fill: #ffffff; stroke: #444444; }
.link-label { font-size: 10px; }
.uml-title { font-weight: bold; }
`
